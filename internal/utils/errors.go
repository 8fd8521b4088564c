package utils

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error {
	return appErr.Origin
}

// Standard error codes for the application
const (
	// Authentication/Authorization errors
	ErrUnauthenticated = "UNAUTHENTICATED" // no verified actor on the request
	ErrUnauthorized    = "UNAUTHORIZED"    // actor lacks the required role for the target message

	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrDuplicate    = "DUPLICATE"
	ErrInvalidInput = "INVALID_ARGUMENT"
	ErrInvalidState = "INVALID_STATE"

	// Collaborator errors
	ErrMediaUpload      = "MEDIA_UPLOAD_FAILED"
	ErrStoreUnavailable = "STORE_UNAVAILABLE"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewUnauthenticatedError(reason string) *AppError {
	return &AppError{Code: ErrUnauthenticated, Message: "Unauthenticated: " + reason}
}

func NewUnauthorizedError(reason string) *AppError {
	return &AppError{Code: ErrUnauthorized, Message: "Unauthorized: " + reason}
}

func NewNotFoundError(what string) *AppError {
	return &AppError{Code: ErrNotFound, Message: what + " not found"}
}

func NewInvalidInputError(reason string) *AppError {
	return &AppError{Code: ErrInvalidInput, Message: reason}
}

func NewInvalidStateError(reason string) *AppError {
	return &AppError{Code: ErrInvalidState, Message: reason}
}

func NewMediaUploadError(err error) *AppError {
	return &AppError{Code: ErrMediaUpload, Message: "media upload failed", Origin: err}
}

func NewStoreUnavailableError(err error) *AppError {
	return &AppError{Code: ErrStoreUnavailable, Message: "message store unavailable", Origin: err}
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound:
		return 404 // http.StatusNotFound
	case ErrInvalidInput:
		return 400 // http.StatusBadRequest
	case ErrUnauthenticated:
		return 401 // http.StatusUnauthorized
	case ErrUnauthorized:
		return 403 // http.StatusForbidden
	case ErrDuplicate:
		return 409 // http.StatusConflict
	case ErrInvalidState:
		return 422 // http.StatusUnprocessableEntity
	case ErrMediaUpload, ErrStoreUnavailable:
		return 502 // http.StatusBadGateway
	default:
		return 500 // http.StatusInternalServerError for unknown errors
	}
}
