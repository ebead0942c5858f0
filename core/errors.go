package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindAuth       ErrorKind = "auth"
	KindPermission ErrorKind = "permission"
	KindValidation ErrorKind = "validation"
	KindAPI        ErrorKind = "api"
	KindUnknown    ErrorKind = "unknown"
)

const (
	ClientErrorNetwork      = "CLIENT_NETWORK"
	ClientErrorUnauthorized = "CLIENT_UNAUTHORIZED"
	ClientErrorForbidden    = "CLIENT_FORBIDDEN"
	ClientErrorValidation   = "CLIENT_VALIDATION"
	ClientErrorAPI          = "CLIENT_API"
	ClientErrorUnknown      = "CLIENT_UNKNOWN"
	ClientErrorBadInput     = "CLIENT_BAD_INPUT"
	ClientErrorInternal     = "CLIENT_INTERNAL_ERROR"
)

// TypedError is the single failure shape surfaced by the client. Values are
// immutable once built.
type TypedError struct {
	kind        ErrorKind
	message     string
	status      int
	retriable   bool
	fieldErrors FieldErrors
	cause       error
}

var (
	ErrNetwork    = &TypedError{kind: KindNetwork}
	ErrAuth       = &TypedError{kind: KindAuth}
	ErrPermission = &TypedError{kind: KindPermission}
	ErrValidation = &TypedError{kind: KindValidation}
	ErrAPI        = &TypedError{kind: KindAPI}
	ErrUnknown    = &TypedError{kind: KindUnknown}
)

func newTypedError(kind ErrorKind, message string, status int, retriable bool, fields FieldErrors, cause error) *TypedError {
	message = strings.TrimSpace(message)
	if message == "" {
		message = Message(kind, status, DefaultLocale)
	}
	return &TypedError{
		kind:        kind,
		message:     message,
		status:      status,
		retriable:   retriable,
		fieldErrors: fields.clone(),
		cause:       cause,
	}
}

func newValidationError(message string, fields FieldErrors) *TypedError {
	return newTypedError(KindValidation, message, 0, false, fields, nil)
}

func (e *TypedError) Kind() ErrorKind {
	if e == nil {
		return KindUnknown
	}
	return e.kind
}

func (e *TypedError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// HTTPStatus reports the response status when a response was received.
func (e *TypedError) HTTPStatus() (int, bool) {
	if e == nil || e.status == 0 {
		return 0, false
	}
	return e.status, true
}

func (e *TypedError) Retriable() bool {
	return e != nil && e.retriable
}

func (e *TypedError) FieldErrors() map[string][]string {
	if e == nil {
		return nil
	}
	return e.fieldErrors.clone()
}

func (e *TypedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.status != 0 {
		return fmt.Sprintf("client: %s error (status %d): %s", e.kind, e.status, e.message)
	}
	return fmt.Sprintf("client: %s error: %s", e.kind, e.message)
}

func (e *TypedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches the kind sentinels, and statuses when the target carries one.
func (e *TypedError) Is(target error) bool {
	typed, ok := target.(*TypedError)
	if !ok || e == nil || typed == nil {
		return false
	}
	if typed.kind != e.kind {
		return false
	}
	return typed.status == 0 || typed.status == e.status
}

func (e *TypedError) TextCode() string {
	switch e.Kind() {
	case KindNetwork:
		return ClientErrorNetwork
	case KindAuth:
		return ClientErrorUnauthorized
	case KindPermission:
		return ClientErrorForbidden
	case KindValidation:
		return ClientErrorValidation
	case KindAPI:
		return ClientErrorAPI
	default:
		return ClientErrorUnknown
	}
}

// ServiceError projects the failure onto the go-errors envelope.
func (e *TypedError) ServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	var out *goerrors.Error
	switch e.kind {
	case KindValidation:
		fields := make([]goerrors.FieldError, 0, len(e.fieldErrors))
		for field, messages := range e.fieldErrors {
			fields = append(fields, goerrors.FieldError{
				Field:   field,
				Message: strings.Join(messages, "; "),
			})
		}
		out = goerrors.NewValidation(e.message, fields...)
	default:
		out = goerrors.Wrap(e, e.category(), e.message)
	}
	out = out.WithTextCode(e.TextCode())
	if e.status != 0 {
		out = out.WithCode(e.status)
	}
	out.WithMetadata(map[string]any{
		"kind":      string(e.kind),
		"retriable": e.retriable,
	})
	return ensureClientErrorEnvelope(out)
}

func (e *TypedError) category() goerrors.Category {
	switch e.kind {
	case KindNetwork:
		return goerrors.CategoryExternal
	case KindAuth:
		return goerrors.CategoryAuth
	case KindPermission:
		return goerrors.CategoryAuthz
	case KindValidation:
		return goerrors.CategoryValidation
	case KindAPI:
		switch {
		case e.status == http.StatusNotFound:
			return goerrors.CategoryNotFound
		case e.status == http.StatusConflict:
			return goerrors.CategoryConflict
		case e.status == http.StatusTooManyRequests:
			return goerrors.CategoryRateLimit
		case e.status >= 500:
			return goerrors.CategoryExternal
		default:
			return goerrors.CategoryOperation
		}
	default:
		return goerrors.CategoryInternal
	}
}

func AsTypedError(err error) (*TypedError, bool) {
	var typed *TypedError
	if errors.As(err, &typed) && typed != nil {
		return typed, true
	}
	return nil, false
}

// KindOf reports the kind of err after classification.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return ClassifyError(err).Kind()
}

func clientErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if typed, ok := AsTypedError(err); ok {
		return typed.ServiceError()
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureClientErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must"):
		return newClientError(err.Error(), goerrors.CategoryBadInput, ClientErrorBadInput)
	case strings.Contains(msg, "not configured"):
		return newClientError(err.Error(), goerrors.CategoryInternal, ClientErrorInternal)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureClientErrorEnvelope(mapped)
}

func newClientError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureClientErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureClientErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = clientHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultClientTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultClientTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ClientErrorBadInput
	case goerrors.CategoryValidation:
		return ClientErrorValidation
	case goerrors.CategoryAuth:
		return ClientErrorUnauthorized
	case goerrors.CategoryAuthz:
		return ClientErrorForbidden
	case goerrors.CategoryExternal:
		return ClientErrorNetwork
	case goerrors.CategoryNotFound, goerrors.CategoryConflict, goerrors.CategoryRateLimit, goerrors.CategoryOperation:
		return ClientErrorAPI
	default:
		return ClientErrorInternal
	}
}

func clientHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
