package domain

import "errors"

// Error kinds. Transport maps each kind to one status code.
var (
	ErrInvalid       = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrRateLimited   = errors.New("too many requests")
	ErrNotConfigured = errors.New("not configured")
)

// Error carries a user-facing message and unwraps to its kind.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

func newError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func NewInvalidError(msg string) error       { return newError(ErrInvalid, msg) }
func NewNotFoundError(msg string) error      { return newError(ErrNotFound, msg) }
func NewUnauthorizedError(msg string) error  { return newError(ErrUnauthorized, msg) }
func NewConflictError(msg string) error      { return newError(ErrConflict, msg) }
func NewForbiddenError(msg string) error     { return newError(ErrForbidden, msg) }
func NewNotConfiguredError(msg string) error { return newError(ErrNotConfigured, msg) }

var (
	// ErrTestNotFound is returned when a test id is unknown.
	ErrTestNotFound = NewNotFoundError("test not found")
	// ErrTestNotAvailable is returned when participants reach a missing or unpublished test.
	ErrTestNotAvailable = NewNotFoundError("test not available")
	// ErrTestNotPublished is returned for public reads of a draft test.
	ErrTestNotPublished = NewForbiddenError("test not published")
	// ErrTaskNotFound indicates a task id outside the test.
	ErrTaskNotFound = NewNotFoundError("task not found")
	// ErrQuestionNotFound indicates a question id outside the test.
	ErrQuestionNotFound = NewNotFoundError("question not found")
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = NewNotFoundError("session not found")
	// ErrAlreadySubmitted is returned when a participant starts the same test twice.
	ErrAlreadySubmitted = NewConflictError("already submitted")
	// ErrAlreadyCompleted is returned on a second completion of the same session.
	ErrAlreadyCompleted = NewConflictError("already completed")
	// ErrInvalidValidity rejects review verdicts outside the enum.
	ErrInvalidValidity = NewInvalidError("validity must be pending, approved, or rejected")
	// ErrNotAuthenticated is returned for admin operations without a valid admin token.
	ErrNotAuthenticated = newError(ErrUnauthorized, "Unauthorized")
	// ErrTooManyRequests is returned when a client exceeds its rate limit.
	ErrTooManyRequests = newError(ErrRateLimited, "Too many requests")
	// ErrSecretNotConfigured means the admin secret is missing from configuration.
	ErrSecretNotConfigured = NewNotConfiguredError("ADMIN_SECRET or ADMIN_PASSWORD must be set")
)
