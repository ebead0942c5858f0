package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"

	contentTypeJSON = "application/json"

	DefaultDownloadLimit int64 = 64 << 20
)

type ClientDependencies struct {
	Logger          Logger
	MetricsRecorder MetricsRecorder
	DownloadSink    DownloadSink
	RequestIDs      func() string
	Clock           func() time.Time
	Sleep           SleepFunc
}

// Client is the authenticated request pipeline. Every call gets a request ID
// and a bearer token when a session exists. A 401 on a call that carried a
// token triggers one shared refresh and exactly one replay.
type Client struct {
	cfg             Config
	baseURL         string
	transport       TransportAdapter
	tokens          TokenSource
	logger          Logger
	metricsRecorder MetricsRecorder
	downloadSink    DownloadSink
	requestIDs      func() string
	now             func() time.Time
	sleep           SleepFunc
}

type Request struct {
	Method      string
	Path        string
	Query       map[string]string
	Headers     map[string]string
	Body        any
	RawBody     []byte
	ContentType string
	Timeout     time.Duration
	SkipAuth    bool
	Retry       bool
	Operation   string
	// OnUploadProgress receives a monotonic 0-100 percentage.
	OnUploadProgress     func(percent int)
	MaxResponseBodyBytes int64
}

type RequestOption func(*Request)

func WithQuery(key, value string) RequestOption {
	return func(r *Request) {
		if r.Query == nil {
			r.Query = map[string]string{}
		}
		r.Query[key] = value
	}
}

func WithQueryValues(values map[string]string) RequestOption {
	return func(r *Request) {
		for key, value := range values {
			WithQuery(key, value)(r)
		}
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Headers == nil {
			r.Headers = map[string]string{}
		}
		r.Headers[key] = value
	}
}

func WithTimeout(timeout time.Duration) RequestOption {
	return func(r *Request) {
		r.Timeout = timeout
	}
}

// WithoutAuth sends the request without a bearer token and disables the
// refresh-and-replay path.
func WithoutAuth() RequestOption {
	return func(r *Request) {
		r.SkipAuth = true
	}
}

// WithRetryPolicy runs the request under the configured retry policy.
func WithRetryPolicy() RequestOption {
	return func(r *Request) {
		r.Retry = true
	}
}

func WithOperation(name string) RequestOption {
	return func(r *Request) {
		r.Operation = name
	}
}

func WithUploadProgress(progress func(percent int)) RequestOption {
	return func(r *Request) {
		r.OnUploadProgress = progress
	}
}

func WithMaxResponseBytes(limit int64) RequestOption {
	return func(r *Request) {
		r.MaxResponseBodyBytes = limit
	}
}

func NewClient(cfg Config, transport TransportAdapter, tokens TokenSource, deps ClientDependencies) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("core: transport adapter is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if parsed, err := url.Parse(baseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("core: base_url %q is invalid", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	client := &Client{
		cfg:             cfg,
		baseURL:         baseURL,
		transport:       transport,
		tokens:          tokens,
		logger:          deps.Logger,
		metricsRecorder: deps.MetricsRecorder,
		downloadSink:    deps.DownloadSink,
		requestIDs:      deps.RequestIDs,
		now:             deps.Clock,
		sleep:           deps.Sleep,
	}
	if client.metricsRecorder == nil {
		client.metricsRecorder = NopMetricsRecorder{}
	}
	if client.downloadSink == nil {
		client.downloadSink = NewFileSink("")
	}
	if client.requestIDs == nil {
		client.requestIDs = newRequestID
	}
	if client.now == nil {
		client.now = utcNow
	}
	if client.sleep == nil {
		client.sleep = waitWithContext
	}
	return client, nil
}

// RetryOptions builds the configured retry policy for an operation.
func (c *Client) RetryOptions(operation string) RetryOptions {
	if c == nil {
		return RetryOptions{Operation: operation}
	}
	return RetryOptions{
		MaxAttempts: c.cfg.Retry.MaxAttempts,
		BaseDelay:   c.cfg.Retry.BaseDelay,
		Operation:   operation,
		Logger:      c.logger,
		Sleep:       c.sleep,
	}
}

// Do sends req and unwraps the response envelope.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	if c == nil {
		return Response{}, fmt.Errorf("core: client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Retry {
		return Retry(ctx, func(ctx context.Context) (Response, error) {
			return c.do(ctx, req)
		}, c.RetryOptions(requestOperation(req)))
	}
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	resp, requestID, typedErr := c.execute(ctx, req)
	if typedErr != nil {
		return Response{}, typedErr
	}
	envelope, typedErr := decodeEnvelope(resp)
	if typedErr != nil {
		return Response{}, typedErr
	}
	return Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Data:       envelope.Data,
		Message:    envelope.Message,
		Pagination: envelope.Pagination,
		RequestID:  requestID,
	}, nil
}

func (c *Client) execute(ctx context.Context, req Request) (TransportResponse, string, *TypedError) {
	reqCtx := RequestContext{
		RequestID: c.requestIDs(),
		Attempt:   1,
		StartedAt: c.now(),
	}

	token := ""
	if !req.SkipAuth && c.tokens != nil {
		var err error
		token, err = c.tokens.AccessToken(ctx)
		if err != nil {
			return TransportResponse{}, reqCtx.RequestID, ClassifyError(err)
		}
	}

	resp, typedErr := c.send(ctx, req, reqCtx, token)
	if typedErr == nil {
		return resp, reqCtx.RequestID, nil
	}
	status, _ := typedErr.HTTPStatus()
	if status != http.StatusUnauthorized || req.SkipAuth || c.tokens == nil || token == "" {
		return TransportResponse{}, reqCtx.RequestID, typedErr
	}

	fresh, err := c.tokens.RefreshAfterUnauthorized(ctx, token)
	if err != nil {
		return TransportResponse{}, reqCtx.RequestID, ClassifyError(err)
	}
	reqCtx.Attempt = 2
	resp, typedErr = c.send(ctx, req, reqCtx, fresh)
	if typedErr != nil {
		return TransportResponse{}, reqCtx.RequestID, typedErr
	}
	return resp, reqCtx.RequestID, nil
}

func (c *Client) send(ctx context.Context, req Request, reqCtx RequestContext, token string) (TransportResponse, *TypedError) {
	ctx = ContextWithRequest(ctx, reqCtx)
	startedAt := c.now()

	transportReq, typedErr := c.buildTransportRequest(req, reqCtx, token)
	if typedErr != nil {
		return TransportResponse{}, typedErr
	}

	resp, err := c.transport.Do(ctx, transportReq)
	if err == nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		typedErr = Classify(Failure{Responded: true, StatusCode: resp.StatusCode, Body: resp.Body})
	} else if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		typedErr = Classify(Failure{Err: err, Responded: resp.StatusCode != 0, StatusCode: resp.StatusCode, Body: resp.Body})
	}

	fields := map[string]any{
		"method":       transportReq.Method,
		"url":          transportReq.URL,
		"request_id":   reqCtx.RequestID,
		"attempt":      reqCtx.Attempt,
		"status_code":  resp.StatusCode,
		"status_class": statusClass(resp.StatusCode),
	}
	if c.cfg.Logging.VerbosePayloads {
		fields["request_headers"] = RedactHeaders(transportReq.Headers)
		fields["request_body"] = RedactPayload(transportReq.Body)
		fields["response_body"] = RedactPayload(resp.Body)
	}
	var observed error
	if typedErr != nil {
		observed = typedErr
	}
	observeOperation(ctx, c.logger, c.metricsRecorder, c.now().Sub(startedAt), "http.request", observed, fields)

	if typedErr != nil {
		return TransportResponse{}, typedErr
	}
	return resp, nil
}

func (c *Client) buildTransportRequest(req Request, reqCtx RequestContext, token string) (TransportRequest, *TypedError) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	headers := map[string]string{
		HeaderAccept:    contentTypeJSON,
		HeaderRequestID: reqCtx.RequestID,
	}
	for key, value := range req.Headers {
		headers[key] = value
	}

	body := req.RawBody
	if body == nil && req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return TransportRequest{}, newTypedError(KindUnknown, "request body could not be encoded", 0, false, nil, err)
		}
		body = encoded
	}
	if body != nil {
		contentType := req.ContentType
		if contentType == "" {
			contentType = contentTypeJSON
		}
		headers[HeaderContentType] = contentType
	}
	if token != "" {
		headers[HeaderAuthorization] = "Bearer " + token
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	transportReq := TransportRequest{
		Method:               method,
		URL:                  c.resolveURL(req.Path),
		Headers:              headers,
		Query:                req.Query,
		Body:                 body,
		Timeout:              timeout,
		MaxResponseBodyBytes: req.MaxResponseBodyBytes,
	}
	if req.OnUploadProgress != nil {
		transportReq.OnUploadProgress = newProgressReporter(req.OnUploadProgress)
	}
	return transportReq, nil
}

func (c *Client) resolveURL(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// decodeEnvelope unwraps the standard envelope. Bodies without a success
// field are passed through whole as data.
func decodeEnvelope(resp TransportResponse) (Envelope, *TypedError) {
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return Envelope{Success: true}, nil
	}
	malformed := func() *TypedError {
		return Classify(Failure{Err: ErrMalformedResponse, Responded: true, StatusCode: resp.StatusCode, Body: body})
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		if json.Valid(body) {
			return Envelope{Success: true, Data: body}, nil
		}
		return Envelope{}, malformed()
	}
	if _, ok := probe["success"]; !ok {
		return Envelope{Success: true, Data: body}, nil
	}
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Envelope{}, malformed()
	}
	if !envelope.Success {
		return Envelope{}, Classify(Failure{Responded: true, StatusCode: resp.StatusCode, Body: body})
	}
	return envelope, nil
}

// newProgressReporter converts byte counts into a non-decreasing percentage.
func newProgressReporter(report func(percent int)) func(sent int64, total int64) {
	report = monotonicPercent(report)
	return func(sent int64, total int64) {
		percent := 0
		switch {
		case total > 0:
			percent = int(sent * 100 / total)
		case sent > 0:
			percent = 100
		}
		report(percent)
	}
}

// monotonicPercent drops values that do not advance past the last reported
// percentage and clamps to 0-100.
func monotonicPercent(report func(percent int)) func(percent int) {
	var mu sync.Mutex
	last := -1
	return func(percent int) {
		if percent > 100 {
			percent = 100
		}
		if percent < 0 {
			percent = 0
		}
		mu.Lock()
		if percent <= last {
			mu.Unlock()
			return
		}
		last = percent
		mu.Unlock()
		report(percent)
	}
}

func requestOperation(req Request) string {
	if strings.TrimSpace(req.Operation) != "" {
		return req.Operation
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + req.Path
}

func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

func newRequestID() string {
	return uuid.NewString()
}
