package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/pdfxcel/internal/client/models"
)

// SessionHeader carries the client-generated session identifier.
const SessionHeader = "X-Session-ID"

// SessionIDFunc supplies the session id sent with every request.
type SessionIDFunc func(ctx context.Context) string

// HTTPClient talks to the conversion service over HTTP. Every error it
// returns is an *APIError.
type HTTPClient struct {
	base      *url.URL
	http      *http.Client
	timeout   time.Duration
	sessionID SessionIDFunc
}

// NewHTTPClient builds a client for baseURL (e.g. http://host:8000/api).
// Each request is bounded by timeout unless the caller's context ends first.
func NewHTTPClient(baseURL string, timeout time.Duration, sessionID SessionIDFunc) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if sessionID == nil {
		sessionID = func(context.Context) string { return "" }
	}
	return &HTTPClient{
		base:      u,
		http:      &http.Client{},
		timeout:   timeout,
		sessionID: sessionID,
	}, nil
}

// WithHTTPClient replaces the underlying *http.Client (tests, proxies).
func (c *HTTPClient) WithHTTPClient(h *http.Client) *HTTPClient {
	c.http = h
	return c
}

func (c *HTTPClient) endpoint(parts ...string) string {
	u := *c.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = c.base.Path + "/" + strings.Join(escaped, "/")
	return u.String()
}

// ProgressURL maps http(s)://host/api to ws(s)://host/api/ws/{id}.
func (c *HTTPClient) ProgressURL(fileID string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.base.Path + "/ws/" + url.PathEscape(fileID)
	return u.String()
}

// Ping checks GET /health at the server root.
func (c *HTTPClient) Ping(ctx context.Context) error {
	u := *c.base
	u.Path = "/health"
	resp, err := c.do(ctx, http.MethodGet, u.String(), nil, "")
	if err != nil {
		return err
	}
	_ = drain(resp)
	return nil
}

func (c *HTTPClient) Upload(ctx context.Context, req models.UploadRequest) (*models.UploadResponse, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, &APIError{Code: CodeBadRequest, Message: "cannot open file", Err: err}
	}
	defer f.Close()

	name := req.Filename
	if name == "" {
		name = filepath.Base(req.Path)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, f, name, req.UseAI))
	}()

	resp, err := c.do(ctx, http.MethodPost, c.endpoint("upload"), pr, mw.FormDataContentType())
	// Unblocks the writer goroutine if the request never consumed the body.
	_ = pr.Close()
	if err != nil {
		return nil, err
	}

	var out models.UploadResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	if out.FileID == "" {
		return nil, &APIError{Code: CodeUnknown, Status: resp.StatusCode, Message: "upload response has no file_id"}
	}
	return &out, nil
}

func writeUploadForm(mw *multipart.Writer, r io.Reader, name string, useAI bool) error {
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	if err := mw.WriteField("use_ai", strconv.FormatBool(useAI)); err != nil {
		return err
	}
	if err := mw.WriteField("original_filename", name); err != nil {
		return err
	}
	return mw.Close()
}

// ConvertedData returns the rows of a finished job; an empty slice means
// the result is not ready yet.
func (c *HTTPClient) ConvertedData(ctx context.Context, fileID string) ([]models.Row, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint("data", fileID), nil, "")
	if err != nil {
		return nil, err
	}
	var rows []models.Row
	if err := decode(resp, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint("download", fileID), nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, classifyTransport(err)
	}
	return n, nil
}

func (c *HTTPClient) DeleteDownload(ctx context.Context, fileID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.endpoint("download", fileID), nil, "")
	if err != nil {
		return err
	}
	return drain(resp)
}

func (c *HTTPClient) History(ctx context.Context) (*models.HistoryResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint("history"), nil, "")
	if err != nil {
		return nil, err
	}
	var out models.HistoryResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) FileInfo(ctx context.Context, fileID string) (*models.HistoryItem, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint("history", fileID), nil, "")
	if err != nil {
		return nil, err
	}
	var out struct {
		File models.HistoryItem `json:"file"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out.File, nil
}

func (c *HTTPClient) DeleteHistory(ctx context.Context, fileID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.endpoint("history", fileID), nil, "")
	if err != nil {
		return err
	}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := decode(resp, &out); err != nil {
		return err
	}
	if !out.Success {
		return &APIError{Code: CodeUnknown, Status: resp.StatusCode, Message: "delete not confirmed"}
	}
	return nil
}

// PrepareRedownload returns an absolute download URL for a past conversion.
func (c *HTTPClient) PrepareRedownload(ctx context.Context, fileID string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, c.endpoint("history", fileID, "redownload"), nil, "")
	if err != nil {
		return "", err
	}
	var out struct {
		DownloadURL string `json:"download_url"`
	}
	if err := decode(resp, &out); err != nil {
		return "", err
	}
	ref, err := url.Parse(out.DownloadURL)
	if err != nil || out.DownloadURL == "" {
		return "", &APIError{Code: CodeUnknown, Status: resp.StatusCode, Message: "invalid download_url", Err: err}
	}
	return c.base.ResolveReference(ref).String(), nil
}

func (c *HTTPClient) SessionStats(ctx context.Context) (*models.SessionStats, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint("history", "stats"), nil, "")
	if err != nil {
		return nil, err
	}
	var out struct {
		Stats models.SessionStats `json:"stats"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out.Stats, nil
}

// do sends the request and returns the response only for 2xx statuses.
// The request timeout covers reading the body as well, so the cancel func is
// released when the body is closed.
func (c *HTTPClient) do(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		cancel()
		return nil, &APIError{Code: CodeUnknown, Message: "build request", Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if id := c.sessionID(ctx); id != "" {
		req.Header.Set(SessionHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, classifyTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		cancel()
		return nil, classifyResponse(resp.StatusCode, data)
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func decode(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return classifyTransport(err)
		}
		return &APIError{Code: CodeUnknown, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func drain(resp *http.Response) error {
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
