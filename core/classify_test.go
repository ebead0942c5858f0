package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestClassify_MapsFailuresToKinds(t *testing.T) {
	cases := []struct {
		name      string
		failure   Failure
		kind      ErrorKind
		status    int
		retriable bool
	}{
		{"no response", Failure{Err: errors.New("dial tcp: connection refused")}, KindNetwork, 0, true},
		{"unauthorized", Failure{Responded: true, StatusCode: 401}, KindAuth, 401, false},
		{"forbidden", Failure{Responded: true, StatusCode: 403}, KindPermission, 403, false},
		{"validation", Failure{Responded: true, StatusCode: 422, Body: []byte(`{"success":false,"errors":{"name":["required"]}}`)}, KindValidation, 422, false},
		{"422 without field errors", Failure{Responded: true, StatusCode: 422, Body: []byte(`{"success":false,"message":"nope"}`)}, KindAPI, 422, false},
		{"not found", Failure{Responded: true, StatusCode: 404}, KindAPI, 404, false},
		{"server error", Failure{Responded: true, StatusCode: 500}, KindAPI, 500, true},
		{"gateway html", Failure{Responded: true, StatusCode: 502, Body: []byte("<html>bad gateway</html>")}, KindAPI, 502, true},
		{"envelope failure", Failure{Responded: true, StatusCode: 200, Body: []byte(`{"success":false,"message":"denied"}`)}, KindAPI, 200, false},
		{"malformed 2xx", Failure{Responded: true, StatusCode: 200, Body: []byte("oops"), Err: ErrMalformedResponse}, KindUnknown, 200, false},
		{"cancelled", Failure{Err: fmt.Errorf("wrap: %w", context.Canceled)}, KindUnknown, 0, false},
		{"deadline mid body", Failure{Responded: true, StatusCode: 200, Body: []byte(`{"success":true,"data":`), Err: goerrors.Wrap(fmt.Errorf("%w: read body", context.DeadlineExceeded), goerrors.CategoryExternal, "transport: read response body")}, KindNetwork, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.failure)
			if got.Kind() != tc.kind {
				t.Fatalf("expected kind %s, got %s", tc.kind, got.Kind())
			}
			status, ok := got.HTTPStatus()
			if tc.status == 0 && ok {
				t.Fatalf("expected no status, got %d", status)
			}
			if tc.status != 0 && status != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, status)
			}
			if got.Retriable() != tc.retriable {
				t.Fatalf("expected retriable=%v", tc.retriable)
			}
			if got.Message() == "" {
				t.Fatalf("expected a message")
			}
		})
	}
}

func TestClassify_PassesTypedErrorsThrough(t *testing.T) {
	original := newTypedError(KindPermission, "denied", 403, false, nil, nil)
	if got := Classify(Failure{Err: fmt.Errorf("wrapped: %w", original)}); got != original {
		t.Fatalf("expected typed error to pass through unchanged")
	}
}

func TestClassify_UsesEnvelopeMessage(t *testing.T) {
	got := Classify(Failure{Responded: true, StatusCode: 400, Body: []byte(`{"success":false,"message":"name too long"}`)})
	if got.Message() != "name too long" {
		t.Fatalf("expected server message, got %q", got.Message())
	}
	got = Classify(Failure{Responded: true, StatusCode: 404})
	if got.Message() != http.StatusText(404) {
		t.Fatalf("expected status text fallback, got %q", got.Message())
	}
}

func TestTypedError_FieldErrorsAreCopies(t *testing.T) {
	typed := newValidationError("invalid", FieldErrors{"email": {"invalid"}})
	fields := typed.FieldErrors()
	fields["email"][0] = "mutated"
	if typed.FieldErrors()["email"][0] != "invalid" {
		t.Fatalf("expected typed error to be immutable")
	}
}

func TestTypedError_IsMatchesKindSentinels(t *testing.T) {
	err := fmt.Errorf("call: %w", newTypedError(KindAPI, "gone", 410, false, nil, nil))
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("expected api sentinel match")
	}
	if errors.Is(err, ErrAuth) {
		t.Fatalf("expected auth sentinel mismatch")
	}
}

func TestClassifyError_MapsArbitraryErrors(t *testing.T) {
	if got := ClassifyError(context.DeadlineExceeded); got.Kind() != KindNetwork || !got.Retriable() {
		t.Fatalf("expected deadline to classify as retriable network, got %s", got.Kind())
	}
	if got := ClassifyError(goerrors.New("no", goerrors.CategoryAuthz)); got.Kind() != KindPermission {
		t.Fatalf("expected authz to map to permission, got %s", got.Kind())
	}
	if got := ClassifyError(errors.New("boom")); got.Kind() != KindUnknown {
		t.Fatalf("expected unknown, got %s", got.Kind())
	}
	if ClassifyError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestTypedError_ServiceErrorProjection(t *testing.T) {
	typed := newValidationError("invalid input", FieldErrors{"email": {"invalid"}})
	mapped := typed.ServiceError()
	if mapped.TextCode != ClientErrorValidation {
		t.Fatalf("expected validation text code, got %q", mapped.TextCode)
	}
	if mapped.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", mapped.Category)
	}

	mapped = clientErrorMapper(newTypedError(KindAPI, "busy", 503, true, nil, nil))
	if mapped.Code != 503 || mapped.TextCode != ClientErrorAPI {
		t.Fatalf("expected api projection with status, got %d %q", mapped.Code, mapped.TextCode)
	}

	mapped = clientErrorMapper(errors.New("core: base_url is required"))
	if mapped.TextCode != ClientErrorBadInput || mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected bad input mapping, got %q %d", mapped.TextCode, mapped.Code)
	}
}
