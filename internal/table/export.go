package table

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// Exporter reads the entire matching set for an export.
type Exporter interface {
	Export(ctx context.Context, req core.ExportRequest) ([]core.Row, error)
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(ctx context.Context, req core.ExportRequest) ([]core.Row, error)

// Export calls f.
func (f ExporterFunc) Export(ctx context.Context, req core.ExportRequest) ([]core.Row, error) {
	return f(ctx, req)
}

var (
	// ErrEmptyExport is an informational outcome: nothing matched, no file is produced.
	ErrEmptyExport = errors.New("no records match the current view, nothing to export")
	// ErrExportBusy is returned when an export is triggered while another runs.
	ErrExportBusy = errors.New("an export is already in progress")
)

// Artifact is a finished, downloadable export.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportOption configures an ExportPipeline.
type ExportOption func(*ExportPipeline)

// WithExportFields overrides core.ExportFields.
func WithExportFields(fields []string) ExportOption {
	return func(p *ExportPipeline) { p.fields = slices.Clone(fields) }
}

// WithDelimiter overrides DefaultDelimiter.
func WithDelimiter(d rune) ExportOption {
	return func(p *ExportPipeline) { p.delimiter = d }
}

// WithClock sets the clock used to date artifact names.
func WithClock(now func() time.Time) ExportOption {
	return func(p *ExportPipeline) { p.now = now }
}

// WithExportLogger sets the pipeline logger.
func WithExportLogger(l *slog.Logger) ExportOption {
	return func(p *ExportPipeline) { p.logger = l }
}

// ExportPipeline turns the current filter, sort and search into a
// delimiter-separated file of the full matching set. One export runs at a time.
type ExportPipeline struct {
	exporter  Exporter
	fields    []string
	delimiter rune
	now       func() time.Time
	logger    *slog.Logger

	busy atomic.Bool
}

// NewExportPipeline creates a pipeline reading through exporter.
func NewExportPipeline(exporter Exporter, opts ...ExportOption) *ExportPipeline {
	p := &ExportPipeline{
		exporter:  exporter,
		fields:    slices.Clone(core.ExportFields),
		delimiter: DefaultDelimiter,
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Busy reports whether an export is running.
func (p *ExportPipeline) Busy() bool {
	return p.busy.Load()
}

// Run performs one export: idle -> exporting -> idle.
func (p *ExportPipeline) Run(ctx context.Context, req core.ExportRequest) (*Artifact, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrExportBusy
	}
	defer p.busy.Store(false)

	start := time.Now()
	rows, err := p.exporter.Export(ctx, req)
	if err != nil {
		p.logger.Error("export failed", slog.Any("error", err))
		return nil, fmt.Errorf("export failed: %w", err)
	}
	if len(rows) == 0 {
		p.logger.Info("export produced no rows", slog.String("search", req.SearchText))
		return nil, ErrEmptyExport
	}

	artifact := &Artifact{
		Name:        ArtifactName(p.now(), "csv"),
		ContentType: "text/csv; charset=utf-8",
		Data:        EncodeCSV(rows, p.fields, p.delimiter),
		Rows:        len(rows),
	}
	p.logger.Info("export complete",
		slog.String("name", artifact.Name),
		slog.Int("rows", artifact.Rows),
		slog.Duration("elapsed", time.Since(start)))
	return artifact, nil
}

// ArtifactName returns export_<YYYY-MM-DD>.<ext> for the given day.
func ArtifactName(t time.Time, ext string) string {
	return fmt.Sprintf("export_%s.%s", t.Format(time.DateOnly), ext)
}
