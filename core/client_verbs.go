package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return sendJSON[T](ctx, c, http.MethodGet, path, nil, opts)
}

func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return sendJSON[T](ctx, c, http.MethodPost, path, body, opts)
}

func Put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return sendJSON[T](ctx, c, http.MethodPut, path, body, opts)
}

func Patch[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (T, error) {
	return sendJSON[T](ctx, c, http.MethodPatch, path, body, opts)
}

func Delete[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (T, error) {
	return sendJSON[T](ctx, c, http.MethodDelete, path, nil, opts)
}

// GetPage fetches a list endpoint and returns its items with pagination.
func GetPage[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (Page[T], error) {
	req := buildRequest(http.MethodGet, path, nil, opts)
	resp, err := c.Do(ctx, req)
	if err != nil {
		return Page[T]{}, err
	}
	items, err := decodeData[[]T](resp)
	if err != nil {
		return Page[T]{}, err
	}
	page := Page[T]{Items: items}
	if resp.Pagination != nil {
		page.Pagination = *resp.Pagination
	}
	return page, nil
}

type UploadFile struct {
	// FieldName defaults to "file".
	FieldName   string
	FileName    string
	ContentType string
	Content     io.Reader
	Fields      map[string]string
}

// Upload sends a multipart form. progress, when set, receives a monotonic
// percentage ending at 100 on success.
func Upload[T any](ctx context.Context, c *Client, path string, file UploadFile, progress func(percent int), opts ...RequestOption) (T, error) {
	var zero T
	body, contentType, err := encodeMultipart(file)
	if err != nil {
		return zero, err
	}
	req := buildRequest(http.MethodPost, path, nil, opts)
	req.RawBody = body
	req.ContentType = contentType
	if progress != nil {
		req.OnUploadProgress = progress
	}
	if req.OnUploadProgress != nil {
		req.OnUploadProgress = monotonicPercent(req.OnUploadProgress)
	}
	out, err := doDecoded[T](ctx, c, req)
	if err == nil && req.OnUploadProgress != nil {
		// transports that never report still end at 100
		req.OnUploadProgress(100)
	}
	return out, err
}

func encodeMultipart(file UploadFile) ([]byte, string, error) {
	if file.Content == nil {
		return nil, "", newValidationError("upload content is required", FieldErrors{"file": {"required"}})
	}
	fieldName := strings.TrimSpace(file.FieldName)
	if fieldName == "" {
		fieldName = "file"
	}
	fileName := strings.TrimSpace(file.FileName)
	if fileName == "" {
		fileName = "upload"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range file.Fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", newTypedError(KindUnknown, "upload form could not be encoded", 0, false, nil, err)
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, fileName))
	contentType := strings.TrimSpace(file.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", newTypedError(KindUnknown, "upload form could not be encoded", 0, false, nil, err)
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return nil, "", newTypedError(KindUnknown, "upload content could not be read", 0, false, nil, err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", newTypedError(KindUnknown, "upload form could not be encoded", 0, false, nil, err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func sendJSON[T any](ctx context.Context, c *Client, method, path string, body any, opts []RequestOption) (T, error) {
	return doDecoded[T](ctx, c, buildRequest(method, path, body, opts))
}

func doDecoded[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var zero T
	resp, err := c.Do(ctx, req)
	if err != nil {
		return zero, err
	}
	return decodeData[T](resp)
}

func buildRequest(method, path string, body any, opts []RequestOption) Request {
	req := Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		if opt != nil {
			opt(&req)
		}
	}
	return req
}

func decodeData[T any](resp Response) (T, error) {
	var out T
	data := bytes.TrimSpace(resp.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, Classify(Failure{Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err), Responded: true, StatusCode: resp.StatusCode, Body: data})
	}
	return out, nil
}
