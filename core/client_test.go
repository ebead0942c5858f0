package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

type itemResult struct {
	ID   int    `json:"id"`
	Path string `json:"path"`
}

func loggedInService(t *testing.T, server *authServer, opts ...Option) (*Service, *recordingTransport) {
	t.Helper()
	transport := newRecordingTransport(server.handle)
	svc := newTestService(t, transport, opts...)
	if _, err := svc.Auth().Login(context.Background(), Credentials{Username: "admin", Password: "secret"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	return svc, transport
}

func TestClientVerbs_RefreshOnceAndReplayAfterUnauthorized(t *testing.T) {
	verbs := map[string]func(ctx context.Context, c *Client) (itemResult, error){
		http.MethodGet: func(ctx context.Context, c *Client) (itemResult, error) {
			return Get[itemResult](ctx, c, "/api/items/7")
		},
		http.MethodPost: func(ctx context.Context, c *Client) (itemResult, error) {
			return Post[itemResult](ctx, c, "/api/items/7", map[string]any{"name": "x"})
		},
		http.MethodPut: func(ctx context.Context, c *Client) (itemResult, error) {
			return Put[itemResult](ctx, c, "/api/items/7", map[string]any{"name": "x"})
		},
		http.MethodPatch: func(ctx context.Context, c *Client) (itemResult, error) {
			return Patch[itemResult](ctx, c, "/api/items/7", map[string]any{"name": "x"})
		},
		http.MethodDelete: func(ctx context.Context, c *Client) (itemResult, error) {
			return Delete[itemResult](ctx, c, "/api/items/7")
		},
	}
	for method, call := range verbs {
		t.Run(method, func(t *testing.T) {
			server := &authServer{}
			svc, transport := loggedInService(t, server)
			server.expire()

			out, err := call(context.Background(), svc.Client())
			if err != nil {
				t.Fatalf("expected replay to succeed, got %v", err)
			}
			if out.ID != 7 {
				t.Fatalf("expected decoded item, got %+v", out)
			}
			if server.refreshes() != 1 {
				t.Fatalf("expected one refresh, got %d", server.refreshes())
			}
			if got := transport.count("/api/items/7"); got != 2 {
				t.Fatalf("expected original plus one replay, got %d calls", got)
			}
			last, _ := transport.last("/api/items/7")
			if last.Method != method {
				t.Fatalf("expected replay method %s, got %s", method, last.Method)
			}
			if bearer(last) != "token-2" {
				t.Fatalf("expected replay with refreshed token, got %q", bearer(last))
			}
		})
	}
}

func TestClient_SecondUnauthorizedSurfacesAuthError(t *testing.T) {
	server := &authServer{}
	svc, transport := loggedInService(t, server)
	server.mu.Lock()
	server.rejectAlways = true
	server.mu.Unlock()

	_, err := Get[itemResult](context.Background(), svc.Client(), "/api/items/7")
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if server.refreshes() != 1 {
		t.Fatalf("expected exactly one refresh, got %d", server.refreshes())
	}
	if got := transport.count("/api/items/7"); got != 2 {
		t.Fatalf("expected no second replay, got %d calls", got)
	}
}

func TestClient_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	server := &authServer{refreshDelay: 30 * time.Millisecond}
	svc, _ := loggedInService(t, server)
	server.expire()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Get[itemResult](context.Background(), svc.Client(), "/api/items/7")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("expected all callers to succeed, got %v", err)
		}
	}
	if server.refreshes() != 1 {
		t.Fatalf("expected a single shared refresh, got %d", server.refreshes())
	}
}

func TestClient_RefreshFailureLogsOut(t *testing.T) {
	server := &authServer{refreshStatus: http.StatusUnauthorized}
	svc, _ := loggedInService(t, server)
	server.expire()

	_, err := Get[itemResult](context.Background(), svc.Client(), "/api/items/7")
	if KindOf(err) != KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if svc.Auth().State() != AuthStateLoggedOut {
		t.Fatalf("expected logged out, got %s", svc.Auth().State())
	}
	if svc.Auth().LogoutReason() != LogoutReasonRefreshFailed {
		t.Fatalf("expected refresh_failed reason, got %q", svc.Auth().LogoutReason())
	}
	if _, ok := svc.Storage().Get(context.Background(), DefaultSessionKey); ok {
		t.Fatalf("expected persisted session to be cleared")
	}
}

func TestClient_AnonymousUnauthorizedDoesNotRefresh(t *testing.T) {
	server := &authServer{}
	transport := newRecordingTransport(server.handle)
	svc := newTestService(t, transport)

	_, err := Get[itemResult](context.Background(), svc.Client(), "/api/items/7")
	if KindOf(err) != KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if server.refreshes() != 0 {
		t.Fatalf("expected no refresh without a session")
	}
	req, _ := transport.last("/api/items/7")
	if _, ok := req.Headers[HeaderAuthorization]; ok {
		t.Fatalf("expected no authorization header for anonymous calls")
	}
}

func TestClient_ExpiredTokenRefreshesBeforeSending(t *testing.T) {
	server := &authServer{}
	transport := newRecordingTransport(server.handle)
	svc := newTestService(t, transport)
	ctx := context.Background()
	if _, err := svc.Auth().Login(ctx, Credentials{Username: "admin", Password: "secret"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	svc.Auth().mu.Lock()
	svc.Auth().session.Token.ExpiresAt = time.Now().Add(-time.Minute)
	svc.Auth().mu.Unlock()
	server.expire()

	if _, err := Get[itemResult](ctx, svc.Client(), "/api/items/7"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got := transport.count("/api/items/7"); got != 1 {
		t.Fatalf("expected proactive refresh to avoid a 401, got %d calls", got)
	}
}

func TestClient_AttachesRequestIDAndJSONHeaders(t *testing.T) {
	transport := newRecordingTransport(func(TransportRequest) (TransportResponse, error) {
		return okEnvelope(map[string]any{"id": 1}), nil
	})
	svc := newTestService(t, transport, WithRequestIDGenerator(func() string { return "req-123" }))

	resp, err := svc.Client().Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "api/things",
		Body:   map[string]any{"password": "p"},
		Query:  map[string]string{"page": "2"},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.RequestID != "req-123" {
		t.Fatalf("expected request id on response, got %q", resp.RequestID)
	}
	req, ok := transport.last("/api/things")
	if !ok {
		t.Fatalf("expected request to /api/things")
	}
	if req.URL != testBaseURL+"/api/things" {
		t.Fatalf("unexpected url %q", req.URL)
	}
	if req.Headers[HeaderRequestID] != "req-123" {
		t.Fatalf("expected request id header")
	}
	if req.Headers[HeaderContentType] != "application/json" {
		t.Fatalf("expected json content type, got %q", req.Headers[HeaderContentType])
	}
	if req.Query["page"] != "2" {
		t.Fatalf("expected query to pass through")
	}
}

func TestClient_EnvelopeFailuresAreClassified(t *testing.T) {
	cases := []struct {
		name      string
		response  TransportResponse
		kind      ErrorKind
		retriable bool
	}{
		{"success false on 200", failEnvelope(200, "quota exceeded"), KindAPI, false},
		{"server error", failEnvelope(503, "down"), KindAPI, true},
		{"forbidden", failEnvelope(403, "nope"), KindPermission, false},
		{"not json", TransportResponse{StatusCode: 200, Body: []byte("<html>")}, KindUnknown, false},
		{"validation", TransportResponse{StatusCode: 422, Body: []byte(`{"success":false,"message":"bad","errors":{"email":"invalid"}}`)}, KindValidation, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := newRecordingTransport(func(TransportRequest) (TransportResponse, error) {
				return tc.response, nil
			})
			svc := newTestService(t, transport)
			_, err := Get[itemResult](context.Background(), svc.Client(), "/api/items")
			typed, ok := AsTypedError(err)
			if !ok {
				t.Fatalf("expected typed error, got %v", err)
			}
			if typed.Kind() != tc.kind || typed.Retriable() != tc.retriable {
				t.Fatalf("expected %s/%v, got %s/%v", tc.kind, tc.retriable, typed.Kind(), typed.Retriable())
			}
			if tc.kind == KindValidation && typed.FieldErrors()["email"][0] != "invalid" {
				t.Fatalf("expected field errors, got %v", typed.FieldErrors())
			}
		})
	}
}

func TestClient_BareJSONBodyPassesThrough(t *testing.T) {
	transport := newRecordingTransport(func(TransportRequest) (TransportResponse, error) {
		return TransportResponse{StatusCode: 200, Body: []byte(`{"id":3}`)}, nil
	})
	svc := newTestService(t, transport)
	out, err := Get[itemResult](context.Background(), svc.Client(), "/api/items/3")
	if err != nil || out.ID != 3 {
		t.Fatalf("expected passthrough decode, got %+v %v", out, err)
	}
}

func TestClient_RetryPolicyOption(t *testing.T) {
	calls := 0
	transport := newRecordingTransport(func(TransportRequest) (TransportResponse, error) {
		calls++
		if calls < 3 {
			return TransportResponse{}, errors.New("connection reset")
		}
		return okEnvelope(map[string]any{"id": 9}), nil
	})
	svc := newTestService(t, transport)
	out, err := Get[itemResult](context.Background(), svc.Client(), "/api/items/9", WithRetryPolicy())
	if err != nil || out.ID != 9 {
		t.Fatalf("expected retried success, got %+v %v", out, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestGetPage_DecodesItemsAndPagination(t *testing.T) {
	transport := newRecordingTransport(func(TransportRequest) (TransportResponse, error) {
		return TransportResponse{StatusCode: 200, Body: []byte(`{"success":true,"data":[{"id":1},{"id":2}],"pagination":{"page":1,"limit":2,"total":5,"pages":3,"hasNext":true}}`)}, nil
	})
	svc := newTestService(t, transport)
	page, err := GetPage[itemResult](context.Background(), svc.Client(), "/api/items", WithQuery("page", "1"))
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if len(page.Items) != 2 || page.Pagination.Total != 5 || !page.Pagination.HasNext {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestUpload_SendsMultipartAndReportsProgress(t *testing.T) {
	transport := newRecordingTransport(func(req TransportRequest) (TransportResponse, error) {
		if req.OnUploadProgress != nil {
			total := int64(len(req.Body))
			req.OnUploadProgress(total/2, total)
			req.OnUploadProgress(total/4, total)
			req.OnUploadProgress(total, total)
		}
		return okEnvelope(map[string]any{"id": 11}), nil
	})
	svc := newTestService(t, transport)

	var seen []int
	out, err := Upload[itemResult](context.Background(), svc.Client(), "/api/files", UploadFile{
		FileName: "report.pdf",
		Content:  strings.NewReader("pdf-bytes"),
	}, func(percent int) { seen = append(seen, percent) })
	if err != nil || out.ID != 11 {
		t.Fatalf("upload: %+v %v", out, err)
	}
	req, _ := transport.last("/api/files")
	if !strings.HasPrefix(req.Headers[HeaderContentType], "multipart/form-data; boundary=") {
		t.Fatalf("expected multipart content type, got %q", req.Headers[HeaderContentType])
	}
	if !strings.Contains(string(req.Body), `name="file"; filename="report.pdf"`) {
		t.Fatalf("expected file part in body")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("expected strictly increasing progress, got %v", seen)
		}
	}
	if len(seen) == 0 || seen[len(seen)-1] != 100 {
		t.Fatalf("expected progress to end at 100, got %v", seen)
	}
}

type memorySink struct {
	saved []DownloadedFile
}

func (s *memorySink) Save(_ context.Context, file DownloadedFile) (string, error) {
	s.saved = append(s.saved, file)
	return "mem://" + file.FileName, nil
}

func TestDownload_SavesBodyThroughSink(t *testing.T) {
	transport := newRecordingTransport(func(TransportRequest) (TransportResponse, error) {
		return TransportResponse{
			StatusCode: 200,
			Headers: map[string]string{
				"Content-Type":        "text/csv",
				"Content-Disposition": `attachment; filename="export.csv"`,
			},
			Body: []byte("a,b\n1,2\n"),
		}, nil
	})
	sink := &memorySink{}
	svc := newTestService(t, transport, WithDownloadSink(sink))

	result, err := svc.Client().Download(context.Background(), "/api/exports/1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if result.Location != "mem://export.csv" || result.Size != 8 || result.ContentType != "text/csv" {
		t.Fatalf("unexpected result %+v", result)
	}
	req, _ := transport.last("/api/exports/1")
	if req.Headers[HeaderAccept] != "*/*" {
		t.Fatalf("expected wildcard accept header, got %q", req.Headers[HeaderAccept])
	}
}

func TestFileSink_WritesIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	location, err := NewFileSink(dir).Save(context.Background(), DownloadedFile{FileName: "../evil.txt", Data: []byte("x")})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(location, dir) {
		t.Fatalf("expected file inside %s, got %s", dir, location)
	}
	data, err := os.ReadFile(location)
	if err != nil || string(data) != "x" {
		t.Fatalf("expected written data, got %q %v", data, err)
	}
}

func TestClient_VerbosePayloadsAreRedacted(t *testing.T) {
	transport := newRecordingTransport(func(TransportRequest) (TransportResponse, error) {
		return okEnvelope(map[string]any{"accessToken": "secret-token"}), nil
	})
	fields := map[string]any{
		"request_body":  RedactPayload([]byte(`{"username":"u","password":"p"}`)),
		"response_body": RedactPayload(okEnvelope(map[string]any{"accessToken": "secret-token"}).Body),
	}
	encoded, _ := json.Marshal(fields)
	if strings.Contains(string(encoded), "secret-token") || strings.Contains(string(encoded), `"p"`) {
		t.Fatalf("expected credentials to be redacted: %s", encoded)
	}
	svc := newTestService(t, transport)
	if _, err := Get[map[string]any](context.Background(), svc.Client(), "/api/me"); err != nil {
		t.Fatalf("get: %v", err)
	}
}
