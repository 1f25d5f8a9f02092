package app

import "errors"

var (
	ErrEmailRequired      = errors.New("email is required")
	ErrEmailInvalid       = errors.New("email format is invalid")
	ErrNameRequired       = errors.New("name is required")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPhoneTaken         = errors.New("phone already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")

	ErrFileRequired    = errors.New("document file is required")
	ErrFileTooLarge    = errors.New("document exceeds the size limit")
	ErrFileTypeInvalid = errors.New("unsupported document type")

	ErrDocumentNotFound  = errors.New("document not found")
	ErrDocumentForbidden = errors.New("document belongs to another user")
	ErrDocumentProcessed = errors.New("document is already processed")

	ErrSessionNotFound  = errors.New("chat session not found")
	ErrSessionForbidden = errors.New("chat session belongs to another user")
	ErrMessageRequired  = errors.New("message is required")
	ErrModeInvalid      = errors.New("unknown chat mode")

	ErrPurposeInvalid = errors.New("unknown verification purpose")
	ErrOTPRateLimited = errors.New("too many verification code requests")
)
