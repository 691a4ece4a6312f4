package certificates

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/certdesk/internal/artifact"
	"github.com/leapstack-labs/certdesk/internal/i18n"
	"github.com/leapstack-labs/certdesk/internal/refresh"
	"github.com/leapstack-labs/certdesk/internal/table"
	"github.com/leapstack-labs/certdesk/internal/ui/features/common"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// displayFields are the data columns of the certificate table.
var displayFields = []string{
	core.FieldCommonName,
	core.FieldOrganization,
	core.FieldApplicant,
	core.FieldEmail,
	core.FieldSerial,
	core.FieldValidUntil,
	core.FieldCreatedAt,
}

func displaySchema() table.SchemaGenerator {
	specs := make([]core.FieldSpec, 0, len(displayFields))
	for _, name := range displayFields {
		if spec, ok := core.LookupField(name); ok {
			specs = append(specs, spec)
		}
	}
	return table.StaticSchema(specs)
}

// Handlers provides HTTP handlers for the certificates feature.
type Handlers struct {
	store        core.Store
	fetcher      table.Fetcher
	exporter     table.Exporter
	sessionStore sessions.Store
	bus          *refresh.Bus
	downloads    *artifact.Sink
	opts         Options
	logger       *slog.Logger
	views        *registry
}

// NewHandlers creates a new Handlers instance. downloads holds export
// artifacts until they are fetched once.
func NewHandlers(store core.Store, sessionStore sessions.Store, bus *refresh.Bus, downloads *artifact.Sink, opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		store:        store,
		fetcher:      table.FetcherFunc(store.ListCertificates),
		exporter:     table.ExporterFunc(store.ExportCertificates),
		sessionStore: sessionStore,
		bus:          bus,
		downloads:    downloads,
		opts:         opts,
		logger:       logger,
		views:        newRegistry(),
	}
}

func (h *Handlers) controllerOptions(state table.State) []table.Option {
	opts := []table.Option{
		table.WithLogger(h.logger),
		table.WithSchema(displaySchema()),
		table.WithInitialState(state),
	}
	if h.opts.QuietPeriod > 0 {
		opts = append(opts, table.WithQuietPeriod(h.opts.QuietPeriod))
	}
	if h.opts.DebounceFetch {
		opts = append(opts, table.WithDebouncedSearchFetch())
	}
	return opts
}

// CertificatesPage renders the certificate page with the first page of rows
// already in place. The live view is mounted by CertificatesUpdates.
func (h *Handlers) CertificatesPage(w http.ResponseWriter, r *http.Request) {
	prefs := common.LoadPrefs(h.sessionStore, r)
	if tab, err := strconv.Atoi(r.URL.Query().Get("tab")); err == nil && validFacet(tab) {
		prefs.Tab = tab
		if err := common.SavePrefs(h.sessionStore, w, r, prefs); err != nil {
			h.logger.Warn("failed to save view preferences", slog.Any("error", err))
		}
	}

	state := table.DefaultState(prefs.Tab)
	state.PageSize = prefs.PageSize

	page, err := h.store.ListCertificates(r.Context(), state.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	viewID := uuid.NewString()
	data := PageData{
		ViewID: viewID,
		View: table.View{
			State:  state,
			Rows:   page.Data,
			Total:  page.Total,
			Schema: displaySchema()(nil),
		},
		Labels: common.Labels(r),
	}

	component := common.Page("Certificates", "/certificates", h.opts.IsDev, pageSignals(viewID, state), Content(data))
	if err := component.Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// CertificatesUpdates is the long-lived SSE endpoint of one certificate view.
// It mounts a table controller for the connection, pushes the table on
// every change and reloads on bus pulses. The view is unmounted when the
// client disconnects.
func (h *Handlers) CertificatesUpdates(w http.ResponseWriter, r *http.Request) {
	var signals ViewSignals
	if err := datastar.ReadSignals(r, &signals); err != nil || signals.View == "" {
		http.Error(w, "missing view id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	labels := common.Labels(r)
	v := h.mount(r, signals)
	defer h.unmount(signals.View, v)

	sse := datastar.NewSSE(w, r)
	v.ctrl.Mount()

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.ctrl.Changes():
			if err := h.sendView(sse, signals.View, v.ctrl.View(), labels); err != nil {
				_ = sse.ConsoleError(err)
			}
		case <-v.updates:
			v.ctrl.Reload()
		}
	}
}

func (h *Handlers) mount(r *http.Request, signals ViewSignals) *view {
	state := signals.state()
	v := &view{
		ctrl:    table.New(r.Context(), h.fetcher, state.StatusFacet, h.controllerOptions(state)...),
		export:  table.NewExportPipeline(h.exporter, table.WithExportLogger(h.logger)),
		updates: h.bus.Subscribe(),
	}
	if old := h.views.put(signals.View, v); old != nil {
		old.ctrl.Close()
	}
	h.logger.Debug("view mounted", slog.String("view", signals.View), slog.Int("facet", state.StatusFacet))
	return v
}

func (h *Handlers) unmount(id string, v *view) {
	h.views.remove(id, v)
	h.bus.Unsubscribe(v.updates)
	v.ctrl.Close()
	h.logger.Debug("view unmounted", slog.String("view", id))
}

// sendView patches the table and tabs, and syncs the signals the server
// may have changed on its own, such as a page reset after a search.
func (h *Handlers) sendView(sse *datastar.ServerSentEventGenerator, id string, v table.View, labels i18n.Labels) error {
	if err := sse.PatchElementTempl(Table(id, v, labels)); err != nil {
		return err
	}
	if err := sse.PatchElementTempl(Tabs(id, v.State.StatusFacet, labels)); err != nil {
		return err
	}
	return sse.MarshalAndPatchSignals(map[string]any{
		"page":     v.State.Page,
		"pageSize": v.State.PageSize,
		"tab":      v.State.StatusFacet,
	})
}

// withView reads the signals, resolves the view named in the URL and runs
// fn before the SSE response starts, so fn may still set cookies. An error
// from fn is shown as a notice.
func (h *Handlers) withView(w http.ResponseWriter, r *http.Request, fn func(v *view, s ViewSignals) error) {
	var signals ViewSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, ok := h.views.get(chi.URLParam(r, "view"))
	if !ok {
		http.Error(w, "view not found", http.StatusNotFound)
		return
	}

	err := fn(v, signals)
	sse := datastar.NewSSE(w, r)
	if err != nil {
		_ = sse.PatchElementTempl(common.Notice(common.NoticeError, err.Error()))
	}
}

// SetPage moves the view to the requested page.
func (h *Handlers) SetPage(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, func(v *view, s ViewSignals) error {
		return v.ctrl.SetPage(s.Page)
	})
}

// SetPageSize changes the page size and remembers it for the browser.
func (h *Handlers) SetPageSize(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, func(v *view, s ViewSignals) error {
		if err := v.ctrl.SetPageSize(s.PageSize); err != nil {
			return err
		}
		return h.savePrefs(w, r, v.ctrl.State())
	})
}

// Search applies the search text.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, func(v *view, s ViewSignals) error {
		v.ctrl.SetSearchText(s.Search)
		return nil
	})
}

// Sort replaces the sort order.
func (h *Handlers) Sort(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, func(v *view, s ViewSignals) error {
		sort, err := core.ParseSort(s.Sort)
		if err != nil {
			return err
		}
		v.ctrl.SetSort(sort)
		return nil
	})
}

// Filter replaces the filter expression.
func (h *Handlers) Filter(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, func(v *view, s ViewSignals) error {
		filter, err := core.ParseFilter(s.Filter)
		if err != nil {
			return err
		}
		v.ctrl.SetFilter(filter)
		return nil
	})
}

// Tab switches the status facet, remembers it and pulses the bus.
func (h *Handlers) Tab(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, func(v *view, s ViewSignals) error {
		if !validFacet(s.Tab) {
			return fmt.Errorf("unknown status tab %d", s.Tab)
		}
		v.ctrl.SetStatusFacet(s.Tab)
		h.bus.Pulse()
		return h.savePrefs(w, r, v.ctrl.State())
	})
}

// Refresh pulses the bus so every mounted view reloads.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	h.withView(w, r, func(_ *view, _ ViewSignals) error {
		h.bus.Pulse()
		return nil
	})
}

// RowAction applies a workflow action to one certificate, refetches the
// view through its refetch capability and pulses the bus for every other
// view.
func (h *Handlers) RowAction(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid certificate id", http.StatusBadRequest)
		return
	}
	name := chi.URLParam(r, "action")

	h.withView(w, r, func(v *view, _ ViewSignals) error {
		ctx := r.Context()
		var err error
		if name == "verify" {
			err = h.store.MarkVerified(ctx, id, true)
		} else if target, ok := rowActions[name]; ok {
			err = h.store.UpdateStatus(ctx, id, target)
		} else {
			return fmt.Errorf("unknown action %q", name)
		}
		if err != nil {
			return err
		}

		if _, err := v.ctrl.Refetch()(ctx); err != nil {
			h.logger.Warn("refetch after row action failed", slog.String("id", id), slog.Any("error", err))
		}
		h.bus.PulseFrom(v.updates)
		return nil
	})
}

// Export runs the export pipeline for the view's current filter, sort and
// search. The artifact is handed out through a single-use download URL.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	v, ok := h.views.get(chi.URLParam(r, "view"))
	if !ok {
		http.Error(w, "view not found", http.StatusNotFound)
		return
	}

	sse := datastar.NewSSE(w, r)
	art, err := v.export.Run(r.Context(), v.ctrl.ExportRequest())
	switch {
	case errors.Is(err, table.ErrEmptyExport), errors.Is(err, table.ErrExportBusy):
		_ = sse.PatchElementTempl(common.Notice(common.NoticeInfo, err.Error()))
		return
	case err != nil:
		_ = sse.PatchElementTempl(common.Notice(common.NoticeError, err.Error()))
		return
	}

	key := uuid.NewString() + "/" + art.Name
	if err := h.downloads.Write(r.Context(), key, art.ContentType, art.Data); err != nil {
		h.logger.Error("failed to store export", slog.Any("error", err))
		_ = sse.PatchElementTempl(common.Notice(common.NoticeError, "Export could not be stored."))
		return
	}
	_ = sse.Redirect("/certificates/downloads/" + key)
}

// Download serves an export artifact once.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	name := chi.URLParam(r, "name")
	if _, err := uuid.Parse(token); err != nil || strings.ContainsAny(name, `/\"`) {
		http.NotFound(w, r)
		return
	}

	data, contentType, err := h.downloads.Take(r.Context(), token+"/"+name)
	if errors.Is(err, artifact.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	_, _ = w.Write(data)
}

// Submit creates a submitted application from the dialog and pulses the bus.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	var signals SubmitSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sse := datastar.NewSSE(w, r)
	cert := &core.Certificate{
		CommonName:   strings.TrimSpace(signals.CommonName),
		Organization: strings.TrimSpace(signals.Organization),
		Applicant:    strings.TrimSpace(signals.Applicant),
		Email:        strings.TrimSpace(signals.Email),
		Status:       core.StatusSubmitted,
	}
	if cert.CommonName == "" || cert.Applicant == "" {
		_ = sse.PatchElementTempl(common.Notice(common.NoticeError, "Common name and applicant are required."))
		return
	}
	if err := h.store.CreateCertificate(r.Context(), cert); err != nil {
		_ = sse.PatchElementTempl(common.Notice(common.NoticeError, err.Error()))
		return
	}
	h.bus.Pulse()

	_ = sse.MarshalAndPatchSignals(map[string]any{
		"dialog":       false,
		"commonName":   "",
		"organization": "",
		"applicant":    "",
		"email":        "",
	})
	_ = sse.PatchElementTempl(common.Notice(common.NoticeInfo, "Application for "+cert.CommonName+" submitted."))
}

func (h *Handlers) savePrefs(w http.ResponseWriter, r *http.Request, s table.State) error {
	return common.SavePrefs(h.sessionStore, w, r, common.Prefs{PageSize: s.PageSize, Tab: s.StatusFacet})
}

func validFacet(n int) bool {
	return n == core.StatusAny || core.Status(n).Valid()
}
