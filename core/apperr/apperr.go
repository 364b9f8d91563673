// Package apperr defines the error taxonomy shared by the intake pipeline,
// its collaborators and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error category. Its string value is what the
// client receives in the "kind" field of an error body.
type Kind string

const (
	// 校验类错误
	SubmissionClosed               Kind = "SubmissionClosed"
	MissingRequiredField           Kind = "MissingRequiredField"
	InvalidCategory                Kind = "InvalidCategory"
	SyncRequiresAdditionalCategory Kind = "SyncRequiresAdditionalCategory"
	TeenProofRequired              Kind = "TeenProofRequired"
	AudioMissing                   Kind = "AudioMissing"
	AudioTooLarge                  Kind = "AudioTooLarge"
	AudioFormatInvalid             Kind = "AudioFormatInvalid"
	PaymentProofMissing            Kind = "PaymentProofMissing"
	InvalidForm                    Kind = "InvalidForm"

	DuplicateEntry    Kind = "DuplicateEntry"
	StorageWriteError Kind = "StorageWriteError"

	PaymentGateError       Kind = "PaymentGateError"
	PaymentGateUnavailable Kind = "PaymentGateUnavailable"
	InvalidAmount          Kind = "InvalidAmount"

	NotFound      Kind = "NotFound"
	InternalError Kind = "InternalError"
)

// IsValidation reports whether k is a business-rule rejection of the submitted data.
func (k Kind) IsValidation() bool {
	switch k {
	case SubmissionClosed, MissingRequiredField, InvalidCategory, SyncRequiresAdditionalCategory,
		TeenProofRequired, AudioMissing, AudioTooLarge, AudioFormatInvalid, PaymentProofMissing,
		InvalidForm:
		return true
	}
	return false
}

// Retryable reports whether the client may retry the same operation unchanged.
// Only payment gate failures qualify.
func (k Kind) Retryable() bool {
	return k == PaymentGateError || k == PaymentGateUnavailable
}

// HTTPStatus maps a kind onto the response status code.
func (k Kind) HTTPStatus() int {
	switch {
	case k == AudioTooLarge:
		return http.StatusRequestEntityTooLarge
	case k == SubmissionClosed:
		return http.StatusForbidden
	case k.IsValidation(), k == InvalidAmount:
		return http.StatusBadRequest
	case k == DuplicateEntry:
		return http.StatusConflict
	case k == NotFound:
		return http.StatusNotFound
	case k == PaymentGateUnavailable:
		return http.StatusServiceUnavailable
	case k == PaymentGateError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind, a message that is safe to show to the submitter and
// an optional underlying cause that is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, apperr.New(k, ""))
// works as a kind check.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or InternalError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the text to show a client. Internal and storage
// failures get a generic message so paths and causes never leak.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal server error"
	}
	switch e.Kind {
	case InternalError:
		return "internal server error"
	case StorageWriteError:
		return "could not store your upload, please try again later"
	}
	return e.Message
}
