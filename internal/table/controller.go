package table

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// Fetcher performs the paginated read behind a table.
type Fetcher interface {
	Fetch(ctx context.Context, q core.PageQuery) (core.Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, q core.PageQuery) (core.Page, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, q core.PageQuery) (core.Page, error) {
	return f(ctx, q)
}

// RefetchFunc re-issues the paginated fetch for the state that is current
// when it is called, and returns the result.
type RefetchFunc func(ctx context.Context) (core.Page, error)

// View is a consistent snapshot of what the table displays.
type View struct {
	State   State
	Rows    []core.Row
	Total   int
	Loading bool
	Schema  Schema
}

// PageCount returns the number of pages for the current total.
func (v View) PageCount() int {
	if v.State.PageSize <= 0 || v.Total == 0 {
		return 0
	}
	return (v.Total + v.State.PageSize - 1) / v.State.PageSize
}

type options struct {
	logger        *slog.Logger
	quiet         time.Duration
	debounceFetch bool
	schema        SchemaGenerator
	pageSize      int
	state         *State
}

// Option configures a Controller.
type Option func(*options)

// WithLogger sets the logger used for fetch failures and diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithQuietPeriod overrides DefaultQuietPeriod.
func WithQuietPeriod(d time.Duration) Option {
	return func(o *options) { o.quiet = d }
}

// WithDebouncedSearchFetch gates the search fetch on the quiet period as well,
// instead of fetching the current page on every keystroke.
func WithDebouncedSearchFetch() Option {
	return func(o *options) { o.debounceFetch = true }
}

// WithSchema sets the display schema generator. Defaults to ObservedSchema.
func WithSchema(gen SchemaGenerator) Option {
	return func(o *options) { o.schema = gen }
}

// WithPageSize sets the initial page size. Invalid sizes are ignored.
func WithPageSize(n int) Option {
	return func(o *options) {
		if ValidPageSize(n) {
			o.pageSize = n
		}
	}
}

// WithInitialState starts the controller from s instead of the mount defaults.
// Invalid page sizes fall back to DefaultPageSize.
func WithInitialState(s State) Option {
	return func(o *options) { o.state = &s }
}

// Controller owns the query state of one table view and keeps its rows in
// sync with it. Every distinct state it observes triggers exactly one fetch;
// results of superseded fetches are discarded.
type Controller struct {
	fetcher       Fetcher
	logger        *slog.Logger
	debounceFetch bool

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	fetched    State
	hasFetched bool
	issued     uint64
	rows       []core.Row
	total      int
	loading    bool
	closed     bool

	schema  *SchemaCache
	search  *Debouncer
	changes chan struct{}
	cell    refetchCell
	wg      sync.WaitGroup
}

// New creates a controller for a view scoped to the given status facet.
// Background fetches run under ctx; Close cancels them.
func New(ctx context.Context, fetcher Fetcher, facet int, opts ...Option) *Controller {
	o := options{
		logger:   slog.New(slog.DiscardHandler),
		quiet:    DefaultQuietPeriod,
		schema:   ObservedSchema(),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	state := DefaultState(facet)
	state.PageSize = o.pageSize
	if o.state != nil {
		state = o.state.clone()
		if !ValidPageSize(state.PageSize) {
			state.PageSize = DefaultPageSize
		}
		if state.Page < 0 {
			state.Page = 0
		}
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		fetcher:       fetcher,
		logger:        o.logger,
		debounceFetch: o.debounceFetch,
		ctx:           cctx,
		cancel:        cancel,
		state:         state,
		rows:          []core.Row{},
		schema:        NewSchemaCache(o.schema),
		changes:       make(chan struct{}, 1),
	}
	c.search = NewDebouncer(o.quiet, c.searchSettled)
	c.cell.store(c.bind(state))

	// Static generators are ready without data.
	c.schema.Observe(nil)

	return c
}

// Mount issues the initial fetch.
func (c *Controller) Mount() {
	c.mu.Lock()
	p := c.commitLocked(true)
	c.mu.Unlock()
	c.launch(p)
}

// Close stops the debouncer and cancels in-flight fetches. It waits for
// background fetches to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.search.Stop()
	c.cancel()
	c.wg.Wait()
}

// Changes delivers a ping whenever the view changes. Pings coalesce; read
// View after receiving one.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

// Wait blocks until all background fetches issued so far have resolved.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// View returns the current snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return View{
		State:   c.state.clone(),
		Rows:    slices.Clone(c.rows),
		Total:   c.total,
		Loading: c.loading,
		Schema:  c.schema.Schema(),
	}
}

// State returns a copy of the current query state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// ExportRequest returns the export request for the current filter, sort,
// search and facet.
func (c *Controller) ExportRequest() core.ExportRequest {
	return c.State().ExportRequest()
}

// SearchPending reports whether a search page reset is still scheduled.
func (c *Controller) SearchPending() bool {
	return c.search.Pending()
}

// SetPage moves to page n.
func (c *Controller) SetPage(n int) error {
	if n < 0 {
		return ErrInvalidPage
	}
	c.mutate(func(s *State) { s.Page = n })
	return nil
}

// SetPageSize changes the page size without moving the page.
func (c *Controller) SetPageSize(n int) error {
	if !ValidPageSize(n) {
		return ErrInvalidPageSize
	}
	c.mutate(func(s *State) { s.PageSize = n })
	return nil
}

// SetFilter replaces the filter and returns to the first page.
func (c *Controller) SetFilter(f core.Filter) {
	c.mutate(func(s *State) {
		s.Filter = slices.Clone(f)
		s.Page = 0
	})
}

// SetSort replaces the sort keys. The page is kept.
func (c *Controller) SetSort(sort core.Sort) {
	c.mutate(func(s *State) { s.Sort = slices.Clone(sort) })
}

// SetStatusFacet changes the facet supplied by the hosting view and returns
// to the first page.
func (c *Controller) SetStatusFacet(v int) {
	c.mutate(func(s *State) {
		s.StatusFacet = v
		s.Page = 0
	})
}

// SetSearchText applies the text immediately and schedules a return to the
// first page once typing pauses.
func (c *Controller) SetSearchText(text string) {
	c.mu.Lock()
	c.state.SearchText = text
	var p *pending
	if c.debounceFetch {
		c.cell.store(c.bind(c.state))
		c.notify()
	} else {
		p = c.commitLocked(false)
	}
	c.mu.Unlock()

	c.launch(p)
	c.search.Trigger()
}

// Reload refetches the current state even if it was fetched before.
func (c *Controller) Reload() {
	c.mu.Lock()
	p := c.commitLocked(true)
	c.mu.Unlock()
	c.launch(p)
}

// Refetch returns the capability handed to row renderers. It always resolves
// to the latest bound state, however long ago it was obtained.
func (c *Controller) Refetch() RefetchFunc {
	return func(ctx context.Context) (core.Page, error) {
		return c.cell.load()(ctx)
	}
}

func (c *Controller) searchSettled() {
	c.mutate(func(s *State) { s.Page = 0 })
}

func (c *Controller) mutate(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	p := c.commitLocked(false)
	c.mu.Unlock()
	c.launch(p)
}

// pending is a fetch decided under the lock and launched outside of it.
type pending struct {
	seq   uint64
	query core.PageQuery
}

// commitLocked rebinds the refetch cell and decides whether the state needs a
// fetch. The caller holds c.mu and must pass a non-nil result to launch.
func (c *Controller) commitLocked(force bool) *pending {
	c.cell.store(c.bind(c.state))
	if c.closed {
		return nil
	}
	if !force && c.hasFetched && c.state.Equal(c.fetched) {
		return nil
	}
	seq := c.beginLocked(c.state)
	// Added under the lock so Close never waits on a counter that may still grow.
	c.wg.Add(1)
	return &pending{seq: seq, query: c.state.Query()}
}

// beginLocked tags a fetch of s with the next sequence number.
func (c *Controller) beginLocked(s State) uint64 {
	c.issued++
	c.fetched = s.clone()
	c.hasFetched = true
	c.loading = true
	c.notify()
	return c.issued
}

func (c *Controller) launch(p *pending) {
	if p == nil {
		return
	}
	c.logger.Debug("issuing fetch",
		slog.Uint64("seq", p.seq),
		slog.Int("page", p.query.Page),
		slog.Int("page_size", p.query.PageSize),
		slog.String("search", p.query.SearchText))

	go func() {
		defer c.wg.Done()
		page, err := c.fetcher.Fetch(c.ctx, p.query)
		c.resolve(p.seq, page, err)
	}()
}

// resolve applies a fetch result if it belongs to the latest issued fetch.
func (c *Controller) resolve(seq uint64, page core.Page, err error) bool {
	c.mu.Lock()
	if seq != c.issued {
		latest := c.issued
		c.mu.Unlock()
		c.logger.Debug("discarding stale fetch result", slog.Uint64("seq", seq), slog.Uint64("latest", latest))
		return false
	}

	c.loading = false
	if err != nil {
		c.rows = []core.Row{}
		c.total = 0
		closed := c.closed
		c.notify()
		c.mu.Unlock()

		if closed && errors.Is(err, context.Canceled) {
			return true
		}
		c.logger.Error("fetch failed", slog.Uint64("seq", seq), slog.Any("error", err))
		return true
	}

	c.rows = page.Data
	if c.rows == nil {
		c.rows = []core.Row{}
	}
	c.total = page.Total
	c.mu.Unlock()

	if c.schema.Observe(page.Data) {
		c.logger.Debug("display schema generated", slog.Uint64("seq", seq))
	}
	c.notify()
	return true
}

// bind captures s in a refetch function. Only the cell holds it; children
// call through Refetch.
func (c *Controller) bind(s State) RefetchFunc {
	snapshot := s.clone()
	return func(ctx context.Context) (core.Page, error) {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return core.Page{}, ErrClosed
		}
		// The cell may have been loaded before a commit that holds the
		// lock now; the sequence tag must match the state it fetches.
		target := snapshot
		if !c.state.Equal(target) {
			target = c.state.clone()
		}
		seq := c.beginLocked(target)
		c.mu.Unlock()

		page, err := c.fetcher.Fetch(ctx, target.Query())
		c.resolve(seq, page, err)
		return page, err
	}
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// refetchCell is the single mutable indirection between children and the
// current fetch binding.
type refetchCell struct {
	p atomic.Pointer[RefetchFunc]
}

func (r *refetchCell) store(f RefetchFunc) {
	r.p.Store(&f)
}

func (r *refetchCell) load() RefetchFunc {
	return *r.p.Load()
}
