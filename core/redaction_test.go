package core

import "testing"

func TestRedactSensitiveMap_MasksCredentialsRecursively(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"request_id": "r1",
		"password":   "p",
		"nested": map[string]any{
			"refreshToken": "r",
			"items":        []any{map[string]any{"api_key": "k", "name": "n"}},
		},
	})
	if redacted["request_id"] != "r1" || redacted["password"] != RedactedValue {
		t.Fatalf("unexpected top-level redaction %v", redacted)
	}
	nested := redacted["nested"].(map[string]any)
	if nested["refreshToken"] != RedactedValue {
		t.Fatalf("expected nested token redaction")
	}
	item := nested["items"].([]any)[0].(map[string]any)
	if item["api_key"] != RedactedValue || item["name"] != "n" {
		t.Fatalf("unexpected list redaction %v", item)
	}
}

func TestRedactHeaders_MasksAuthorization(t *testing.T) {
	headers := RedactHeaders(map[string]string{"Authorization": "Bearer x", "X-Request-ID": "r"})
	if headers["Authorization"] != RedactedValue || headers["X-Request-ID"] != "r" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestRedactPayload_SummarisesNonJSON(t *testing.T) {
	summary, ok := RedactPayload([]byte("binary")).(map[string]any)
	if !ok || summary["bytes"] != 6 {
		t.Fatalf("expected byte summary, got %v", summary)
	}
}
