package internal

import "errors"

var (
	ErrCodeExists         = errors.New("short code already exists")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique short code")
	ErrLinkNotFound       = errors.New("link not found")
	ErrEmailExists        = errors.New("email exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("authentication required")
)

// ValidationError reports malformed or missing input. Reason is returned to
// the client verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}
