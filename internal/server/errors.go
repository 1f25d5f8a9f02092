package server

import (
	"errors"
	"net/http"

	"lexdocs/internal/app"
	"lexdocs/internal/otp"
	"lexdocs/internal/util"
	"lexdocs/pkg/auth"
)

// writeAppError maps application sentinel errors onto the HTTP error
// taxonomy. Unknown errors become 500; their detail is suppressed in
// production.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrEmailRequired),
		errors.Is(err, app.ErrEmailInvalid),
		errors.Is(err, app.ErrNameRequired),
		errors.Is(err, app.ErrEmailTaken),
		errors.Is(err, app.ErrPhoneTaken),
		errors.Is(err, app.ErrFileRequired),
		errors.Is(err, app.ErrFileTooLarge),
		errors.Is(err, app.ErrFileTypeInvalid),
		errors.Is(err, app.ErrMessageRequired),
		errors.Is(err, app.ErrModeInvalid),
		errors.Is(err, app.ErrPurposeInvalid),
		errors.Is(err, app.ErrDocumentProcessed),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, otp.ErrPhoneInvalid),
		errors.Is(err, otp.ErrCodeRequired),
		errors.Is(err, otp.ErrCodeMismatch),
		errors.Is(err, otp.ErrCodeExpired),
		errors.Is(err, otp.ErrCodeNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, app.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrDocumentForbidden),
		errors.Is(err, app.ErrSessionForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound),
		errors.Is(err, app.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrOTPRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		if s.production {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
