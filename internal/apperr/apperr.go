// Package apperr defines the error kinds shared by every layer of teamdesk.
//
// An *Error carries a Kind plus optional operation name, user-facing message
// and wrapped cause. Sentinels such as ErrNotFound match any *Error of the
// same kind through errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
	KindCredentialConflict
	KindInvalidCredentials
	KindTooManyAttempts
	KindEmailNotVerified
	KindPersistence
	KindDelivery
	KindAuthProvider
	KindUnauthenticated
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindValidation:         "validation",
	KindAuthorization:      "forbidden",
	KindNotFound:           "not_found",
	KindCredentialConflict: "credential_conflict",
	KindInvalidCredentials: "invalid_credentials",
	KindTooManyAttempts:    "too_many_attempts",
	KindEmailNotVerified:   "email_not_verified",
	KindPersistence:        "persistence",
	KindDelivery:           "delivery",
	KindAuthProvider:       "auth_provider",
	KindUnauthenticated:    "unauthenticated",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "internal"
}

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInternal           = &Error{Kind: KindInternal}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrAuthorization      = &Error{Kind: KindAuthorization}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrCredentialConflict = &Error{Kind: KindCredentialConflict}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrTooManyAttempts    = &Error{Kind: KindTooManyAttempts}
	ErrEmailNotVerified   = &Error{Kind: KindEmailNotVerified}
	ErrPersistence        = &Error{Kind: KindPersistence}
	ErrDelivery           = &Error{Kind: KindDelivery}
	ErrAuthProvider       = &Error{Kind: KindAuthProvider}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
)

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, message string) error {
	return New(KindValidation, op, message)
}

func NotFound(op, message string) error {
	return New(KindNotFound, op, message)
}

func Persistence(op string, err error) error {
	return Wrap(KindPersistence, op, err)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// UserMessage returns the text shown to an end user for err.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindInvalidCredentials:
		return "Invalid email or password."
	case KindTooManyAttempts:
		return "Too many failed attempts. Please try again later."
	case KindEmailNotVerified:
		return "Please verify your email address before logging in."
	case KindCredentialConflict:
		return "An account with this email already exists."
	case KindAuthProvider:
		return "Authentication failed. Please try again."
	case KindUnauthenticated:
		return "Please sign in to continue."
	case KindDelivery:
		return "We could not send the verification email. Please try again."
	case KindValidation, KindNotFound, KindAuthorization:
		var e *Error
		if errors.As(err, &e) && e.Message != "" {
			return e.Message
		}
		return err.Error()
	default:
		return "Something went wrong. Please try again."
	}
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization, KindEmailNotVerified:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindCredentialConflict:
		return http.StatusConflict
	case KindInvalidCredentials, KindUnauthenticated:
		return http.StatusUnauthorized
	case KindTooManyAttempts:
		return http.StatusTooManyRequests
	case KindDelivery, KindAuthProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
