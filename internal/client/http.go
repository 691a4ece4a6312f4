// Package client talks to a running certdesk server over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// Endpoint paths of the certdesk API.
const (
	QueryPath   = "/api/certificates/query"
	ExportPath  = "/api/certificates/export"
	RefreshPath = "/api/refresh"
)

// HTTP implements table fetching and exporting against a certdesk server.
type HTTP struct {
	baseURL string
	client  *http.Client
}

// Option configures an HTTP client.
type Option func(*HTTP)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTP) { h.client = c }
}

// New creates a client for the server at baseURL (e.g. "http://localhost:8080").
// Requests time out after 30 seconds.
func New(baseURL string, opts ...Option) *HTTP {
	h := &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch calls POST /api/certificates/query.
func (h *HTTP) Fetch(ctx context.Context, q core.PageQuery) (core.Page, error) {
	var page core.Page
	if err := h.post(ctx, QueryPath, q, &page); err != nil {
		return core.Page{}, err
	}
	normalizeRows(page.Data)
	if page.Data == nil {
		page.Data = []core.Row{}
	}
	return page, nil
}

// Export calls POST /api/certificates/export.
func (h *HTTP) Export(ctx context.Context, req core.ExportRequest) ([]core.Row, error) {
	var resp core.ExportResponse
	if err := h.post(ctx, ExportPath, req, &resp); err != nil {
		return nil, err
	}
	normalizeRows(resp.Data)
	return resp.Data, nil
}

// Refresh calls POST /api/refresh, asking every open view to reload.
func (h *HTTP) Refresh(ctx context.Context) error {
	return h.post(ctx, RefreshPath, struct{}{}, nil)
}

func (h *HTTP) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d %s", e.Path, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s: %d %s", e.Path, e.Code, e.Body)
}

// normalizeRows restores the Go types of certificate fields after JSON decoding,
// so remote rows render and export like rows read from the store.
func normalizeRows(rows []core.Row) {
	for _, row := range rows {
		for field, v := range row {
			switch val := v.(type) {
			case json.Number:
				if n, err := val.Int64(); err == nil {
					row[field] = int(n)
				} else if f, err := val.Float64(); err == nil {
					row[field] = f
				}
			case string:
				if isTimeField(field) {
					if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
						row[field] = t.UTC()
					}
				}
			}
		}
	}
}

func isTimeField(field string) bool {
	switch field {
	case core.FieldValidFrom, core.FieldValidUntil, core.FieldCreatedAt, core.FieldUpdatedAt:
		return true
	}
	return false
}
