package table

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// memoryFetcher serves pages from an in-memory dataset and records every query.
type memoryFetcher struct {
	mu      sync.Mutex
	rows    []core.Row
	queries []core.PageQuery
	err     error
}

func newMemoryFetcher(rows []core.Row) *memoryFetcher {
	return &memoryFetcher{rows: rows}
}

func (f *memoryFetcher) Fetch(_ context.Context, q core.PageQuery) (core.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if f.err != nil {
		return core.Page{}, f.err
	}

	matched := f.match(q.SearchText, q.Status)
	start := q.Page * q.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return core.Page{Data: matched[start:end], Total: len(matched)}, nil
}

func (f *memoryFetcher) Export(_ context.Context, req core.ExportRequest) ([]core.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.match(req.SearchText, req.Status), nil
}

func (f *memoryFetcher) match(search string, status []int) []core.Row {
	var out []core.Row
	for _, r := range f.rows {
		if len(status) > 0 && r[core.FieldStatus] != status[0] {
			continue
		}
		if search != "" && !strings.Contains(r[core.FieldCommonName].(string), search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (f *memoryFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *memoryFetcher) recorded() []core.PageQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.PageQuery, len(f.queries))
	copy(out, f.queries)
	return out
}

// certificateRows builds n rows with the given status.
func certificateRows(n int, status int) []core.Row {
	rows := make([]core.Row, n)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = core.Row{
			core.FieldID:         fmt.Sprintf("cert-%02d", i+1),
			core.FieldCommonName: fmt.Sprintf("host%02d.example.com", i+1),
			core.FieldStatus:     status,
			core.FieldCreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
	}
	return rows
}
