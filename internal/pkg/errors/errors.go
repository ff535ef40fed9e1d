package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog"
)

// Kind classifies a failure for the HTTP boundary. Each kind maps to one
// fixed status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindNotFound
)

func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return ErrCodeInvalidInput
	case KindAuthentication:
		return ErrCodeUnauthorized
	case KindNotFound:
		return ErrCodeNotFound
	default:
		return ErrCodeInternal
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a typed outcome. Message is safe to return to the caller; Err is
// the underlying cause and only ever reaches server-side logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Unauthorized() *Error {
	return &Error{Kind: KindAuthentication}
}

func NotFound(message string, cause error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: cause}
}

// KindOf reports the Kind of err, defaulting to KindInternal for untyped
// errors.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// Write maps err onto its fixed status code. Authentication failures carry
// no message at all; internal failures only the generic one. The cause is
// logged on l and never written to w.
func Write(w http.ResponseWriter, l *zerolog.Logger, err error) {
	var e *Error
	if !stderrors.As(err, &e) {
		e = Internal(err)
	}

	if l != nil {
		ev := l.Warn()
		if e.Kind == KindInternal {
			ev = l.Error()
		}
		ev.Err(e.Err).Str("kind", e.Kind.String()).Msg(e.Message)
	}

	switch e.Kind {
	case KindAuthentication:
		WriteError(w, e.Kind.Status(), "", "", nil)
	case KindInternal:
		WriteError(w, e.Kind.Status(), e.Kind.Code(), "Internal server error", nil)
	default:
		WriteError(w, e.Kind.Status(), e.Kind.Code(), e.Message, nil)
	}
}
