package core

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

var ErrMalformedResponse = errors.New("core: malformed response body")

// Failure is a raw transport outcome prior to classification.
type Failure struct {
	Err        error
	Responded  bool
	StatusCode int
	Body       []byte
}

// Classify maps a raw failure onto exactly one error kind.
func Classify(failure Failure) *TypedError {
	if typed, ok := AsTypedError(failure.Err); ok {
		return typed
	}
	if failure.Err != nil && errors.Is(failure.Err, context.Canceled) {
		return newTypedError(KindUnknown, "request cancelled", 0, false, nil, failure.Err)
	}
	if failure.Err != nil && errors.Is(failure.Err, context.DeadlineExceeded) {
		// timed out after headers, before the body was read
		return newTypedError(KindNetwork, "", 0, true, nil, failure.Err)
	}
	if !failure.Responded {
		return newTypedError(KindNetwork, "", 0, true, nil, failure.Err)
	}

	status := failure.StatusCode
	envelope, decodeErr := decodeErrorEnvelope(failure.Body)
	message := envelope.text()
	if message == "" && status >= 400 {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return newTypedError(KindAuth, message, status, false, nil, failure.Err)
	case status == http.StatusForbidden:
		return newTypedError(KindPermission, message, status, false, nil, failure.Err)
	case status == http.StatusUnprocessableEntity && len(envelope.Errors) > 0:
		return newTypedError(KindValidation, message, status, false, envelope.Errors, failure.Err)
	case status >= 200 && status < 300:
		if failure.Err != nil || decodeErr != nil {
			return newTypedError(KindUnknown, "", status, false, nil, errors.Join(ErrMalformedResponse, failure.Err))
		}
		return newTypedError(KindAPI, message, status, false, nil, nil)
	case status >= 300 && status < 600:
		return newTypedError(KindAPI, message, status, status >= 500, nil, failure.Err)
	default:
		return newTypedError(KindUnknown, message, status, false, nil, failure.Err)
	}
}

// ClassifyError maps an arbitrary error from outside the request pipeline.
func ClassifyError(err error) *TypedError {
	if err == nil {
		return nil
	}
	if typed, ok := AsTypedError(err); ok {
		return typed
	}
	if errors.Is(err, context.Canceled) {
		return newTypedError(KindUnknown, "request cancelled", 0, false, nil, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newTypedError(KindNetwork, "", 0, true, nil, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return newTypedError(KindNetwork, "", 0, true, nil, err)
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		status := 0
		if richErr.Code >= 100 && richErr.Code < 600 {
			status = richErr.Code
		}
		switch richErr.Category {
		case goerrors.CategoryExternal:
			if status >= 400 {
				return newTypedError(KindAPI, richErr.Message, status, status >= 500, nil, err)
			}
			return newTypedError(KindNetwork, richErr.Message, 0, true, nil, err)
		case goerrors.CategoryAuth:
			return newTypedError(KindAuth, richErr.Message, status, false, nil, err)
		case goerrors.CategoryAuthz:
			return newTypedError(KindPermission, richErr.Message, status, false, nil, err)
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			return newTypedError(KindValidation, richErr.Message, status, false, nil, err)
		case goerrors.CategoryNotFound, goerrors.CategoryConflict, goerrors.CategoryRateLimit:
			return newTypedError(KindAPI, richErr.Message, status, status >= 500, nil, err)
		}
	}
	return newTypedError(KindUnknown, err.Error(), 0, false, nil, err)
}

func decodeErrorEnvelope(body []byte) (Envelope, error) {
	if len(body) == 0 {
		return Envelope{}, ErrMalformedResponse
	}
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Envelope{}, err
	}
	return envelope, nil
}
