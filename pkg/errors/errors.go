package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeTimeout      = "TIMEOUT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInvalidInput = "INVALID_INPUT"
	CodeRateLimited  = "RATE_LIMITED"

	CodeBookingFull       = "BOOKING_FULL"
	CodeBookingNotPublic  = "BOOKING_NOT_PUBLIC"
	CodeBookingNotOpen    = "BOOKING_NOT_OPEN"
	CodeRequestNotPending = "REQUEST_NOT_PENDING"
)

var statusByCode = map[string]int{
	CodeNotFound:          http.StatusNotFound,
	CodeValidation:        http.StatusUnprocessableEntity,
	CodeConflict:          http.StatusConflict,
	CodeInternal:          http.StatusInternalServerError,
	CodeBadRequest:        http.StatusBadRequest,
	CodeTimeout:           http.StatusGatewayTimeout,
	CodeUnavailable:       http.StatusServiceUnavailable,
	CodeInvalidInput:      http.StatusBadRequest,
	CodeRateLimited:       http.StatusTooManyRequests,
	CodeBookingFull:       http.StatusConflict,
	CodeBookingNotPublic:  http.StatusUnprocessableEntity,
	CodeBookingNotOpen:    http.StatusConflict,
	CodeRequestNotPending: http.StatusConflict,
}

// StatusFor is the default HTTP status for code. Unknown codes map to 500.
func StatusFor(code string) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Err != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode falls back to the code's default when no status was set.
func (e *AppError) StatusCode() int {
	if e.HTTPStatus == 0 {
		return StatusFor(e.Code)
	}
	return e.HTTPStatus
}

func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// of builds an AppError carrying the code's default status.
func of(code, message string) *AppError {
	return New(code, message, StatusFor(code))
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return of(CodeNotFound, resource+" not found")
}

func NotFoundWithID(resource, id string) *AppError {
	return NotFound(resource).WithDetails(map[string]any{"resource": resource, "id": id})
}

func Validation(message string, details map[string]any) *AppError {
	return of(CodeValidation, message).WithDetails(details)
}

func InvalidInput(message string) *AppError { return of(CodeInvalidInput, message) }

func Conflict(message string) *AppError { return of(CodeConflict, message) }

func Timeout(message string) *AppError { return of(CodeTimeout, message) }

func RateLimited(message string) *AppError { return of(CodeRateLimited, message) }

func Internal(message string, err error) *AppError {
	return Wrap(err, CodeInternal, message, http.StatusInternalServerError)
}

func Unavailable(service string) *AppError {
	return of(CodeUnavailable, service+" is temporarily unavailable")
}

func forBooking(code, message, bookingID string) *AppError {
	return of(code, message).WithDetails(map[string]any{"booking_id": bookingID})
}

// BookingFull is returned when an accept finds no remaining capacity.
// Nothing was mutated.
func BookingFull(bookingID string) *AppError {
	return forBooking(CodeBookingFull, "Booking is full", bookingID)
}

func BookingNotPublic(bookingID string) *AppError {
	return forBooking(CodeBookingNotPublic, "Booking is not public", bookingID)
}

func BookingNotOpen(bookingID, status string) *AppError {
	err := forBooking(CodeBookingNotOpen, "Booking is not open for participants", bookingID)
	err.Details["status"] = status
	return err
}

func RequestNotPending(requestID, status string) *AppError {
	return of(CodeRequestNotPending, "Join request has already been resolved").
		WithDetails(map[string]any{"request_id": requestID, "status": status})
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError unwraps err to its AppError, or reports it as an internal error.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// HasCode reports whether err is, or wraps, an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}
