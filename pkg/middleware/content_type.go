package middleware

import (
	apperrors "letsplay/pkg/errors"
	httputil "letsplay/pkg/http"
	"letsplay/pkg/logger"
	"mime"
	"net/http"
)

// ContentTypeValidation requires a JSON body on writes that carry one.
func ContentTypeValidation(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiresContentType(r) {
				ct := r.Header.Get("Content-Type")
				if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "application/json" {
					log.Warn("Rejected request body",
						"request_id", RequestIDFrom(r.Context()),
						"content_type", ct,
						"method", r.Method,
						"path", r.URL.Path,
					)
					httputil.WriteError(w, reject("Content-Type must be application/json", http.StatusUnsupportedMediaType))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func reject(message string, status int) *apperrors.AppError {
	return apperrors.New(apperrors.CodeBadRequest, message, status)
}

func requiresContentType(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	}
	return false
}

// MaxRequestSize caps the request body.
func MaxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				httputil.WriteError(w, reject("Request body too large", http.StatusRequestEntityTooLarge))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
