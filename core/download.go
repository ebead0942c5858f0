package core

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type DownloadedFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

type DownloadResult struct {
	Location    string
	FileName    string
	ContentType string
	Size        int64
	RequestID   string
}

// Download fetches a binary resource and hands it to the configured sink.
// The body is not treated as an envelope.
func (c *Client) Download(ctx context.Context, resourcePath string, opts ...RequestOption) (DownloadResult, error) {
	if c == nil {
		return DownloadResult{}, fmt.Errorf("core: client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req := buildRequest(http.MethodGet, resourcePath, nil, opts)
	if req.MaxResponseBodyBytes <= 0 {
		req.MaxResponseBodyBytes = DefaultDownloadLimit
	}
	if req.Headers == nil || headerValue(req.Headers, HeaderAccept) == "" {
		WithHeader(HeaderAccept, "*/*")(&req)
	}

	fetch := func(ctx context.Context) (DownloadResult, error) {
		resp, requestID, typedErr := c.execute(ctx, req)
		if typedErr != nil {
			return DownloadResult{}, typedErr
		}
		file := DownloadedFile{
			FileName:    downloadFileName(resp.Headers, resourcePath),
			ContentType: headerValue(resp.Headers, HeaderContentType),
			Data:        resp.Body,
		}
		location, err := c.downloadSink.Save(ctx, file)
		if err != nil {
			return DownloadResult{}, newTypedError(KindUnknown, "download could not be saved", 0, false, nil, err)
		}
		return DownloadResult{
			Location:    location,
			FileName:    file.FileName,
			ContentType: file.ContentType,
			Size:        int64(len(file.Data)),
			RequestID:   requestID,
		}, nil
	}
	if req.Retry {
		return Retry(ctx, fetch, c.RetryOptions(requestOperation(req)))
	}
	return fetch(ctx)
}

func downloadFileName(headers map[string]string, resourcePath string) string {
	if disposition := headerValue(headers, "Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := sanitizeFileName(params["filename"]); name != "" {
				return name
			}
		}
	}
	trimmed := resourcePath
	if index := strings.IndexAny(trimmed, "?#"); index >= 0 {
		trimmed = trimmed[:index]
	}
	if name := sanitizeFileName(path.Base(trimmed)); name != "" && name != "." && name != "/" {
		return name
	}
	return "download"
}

func sanitizeFileName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// FileSink writes downloads into a directory, defaulting to the OS temp dir.
type FileSink struct {
	Dir string
}

func NewFileSink(dir string) FileSink {
	return FileSink{Dir: dir}
}

func (s FileSink) Save(_ context.Context, file DownloadedFile) (string, error) {
	dir := strings.TrimSpace(s.Dir)
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("core: download dir: %w", err)
	}
	name := sanitizeFileName(file.FileName)
	if name == "" {
		name = "download"
	}
	ext := filepath.Ext(name)
	out, err := os.CreateTemp(dir, strings.TrimSuffix(name, ext)+"-*"+ext)
	if err != nil {
		return "", fmt.Errorf("core: download create: %w", err)
	}
	if _, err := out.Write(file.Data); err != nil {
		out.Close()
		return "", fmt.Errorf("core: download write: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("core: download close: %w", err)
	}
	return out.Name(), nil
}
