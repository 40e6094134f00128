package http

import (
	"encoding/json"
	apperrors "letsplay/pkg/errors"
	"net/http"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

type dataBody struct {
	Data any `json:"data,omitempty"`
}

type pageBody struct {
	Data       any   `json:"data"`
	TotalCount int64 `json:"total_count"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

var internalError = ErrorResponse{Code: apperrors.CodeInternal, Error: "Internal server error"}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError renders err. Anything that is not an AppError becomes a bare 500
// so driver messages stay server side, and 5xx answers drop their details.
func WriteError(w http.ResponseWriter, err error) {
	if !apperrors.IsAppError(err) {
		WriteJSON(w, http.StatusInternalServerError, internalError)
		return
	}

	appErr := apperrors.AsAppError(err)
	status := appErr.StatusCode()
	body := ErrorResponse{Code: appErr.Code, Error: appErr.Message}
	if status < http.StatusInternalServerError {
		body.Details = appErr.Details
	}
	WriteJSON(w, status, body)
}

func WriteSuccess(w http.ResponseWriter, data any) { WriteJSON(w, http.StatusOK, dataBody{data}) }

func WriteCreated(w http.ResponseWriter, data any) { WriteJSON(w, http.StatusCreated, dataBody{data}) }

// WriteAccepted answers for work that continues after the response, such as a
// booking whose saga is still running.
func WriteAccepted(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusAccepted, dataBody{data})
}

func WritePaginated(w http.ResponseWriter, data any, total int64, limit, offset int) {
	WriteJSON(w, http.StatusOK, pageBody{Data: data, TotalCount: total, Limit: limit, Offset: offset})
}
