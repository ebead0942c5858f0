package query

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-clientcore/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestHasPermissionMessage_ValidateReturnsRichError(t *testing.T) {
	err := (HasPermissionMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.ClientErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.ClientErrorBadInput, rich.TextCode)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
}

func TestCurrentSessionQuery_NilReaderReturnsRichError(t *testing.T) {
	var qry *CurrentSessionQuery
	_, err := qry.Query(context.Background(), CurrentSessionMessage{})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
