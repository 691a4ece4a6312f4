package certificates

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/certdesk/internal/testutil"
	"github.com/leapstack-labs/certdesk/internal/ui/features"
	"github.com/leapstack-labs/certdesk/internal/ui/features/common"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// =============================================================================
// Test Setup Helpers
// =============================================================================

func setupTestHandlers(t *testing.T, certs ...features.TestCertificate) (*Handlers, *features.TestFixture) {
	t.Helper()

	fixture := features.SetupTestFixture(t, certs...)
	handlers := NewHandlers(fixture.Store, fixture.SessionStore, fixture.Bus, fixture.Downloads, Options{
		QuietPeriod: 20 * time.Millisecond,
		Logger:      testutil.NewTestLogger(t),
		IsDev:       true,
	})
	return handlers, fixture
}

// mountView registers a view the way the updates stream does and waits for
// its first page.
func mountView(t *testing.T, h *Handlers, id string) *view {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/certificates/updates", nil)
	v := h.mount(req, ViewSignals{View: id, PageSize: 5, Tab: core.StatusAny})
	v.ctrl.Mount()
	v.ctrl.Wait()
	t.Cleanup(func() { h.unmount(id, v) })
	return v
}

func postSignals(t *testing.T, target string, signals any, params ...string) *http.Request {
	t.Helper()
	body, err := json.Marshal(signals)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return features.RequestWithPathParam(req, params...)
}

func getSignals(t *testing.T, target string, signals any) *http.Request {
	t.Helper()
	body, err := json.Marshal(signals)
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodGet, target+"?datastar="+url.QueryEscape(string(body)), nil)
}

func commonNames(v *view) []string {
	rows := v.ctrl.View().Rows
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i], _ = r[core.FieldCommonName].(string)
	}
	return out
}

// =============================================================================
// CertificatesPage Tests - Full HTML page with the first page rendered
// =============================================================================

func TestCertificatesPage(t *testing.T) {
	h, _ := setupTestHandlers(t, features.Hosts(7)...)

	req := httptest.NewRequest(http.MethodGet, "/certificates", nil)
	rec := httptest.NewRecorder()
	h.CertificatesPage(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, want := range []string{
		"<!doctype html>",
		"<title>Certificates - certdesk</title>",
		"data-init",
		"/certificates/updates",
		`id="certificates-table"`,
		"host07.example.com",
		"host03.example.com",
		"Page 1 of 2, 7 total",
		"Submitted",
	} {
		assert.Contains(t, body, want, "response should contain %q", want)
	}
	assert.NotContains(t, body, "host02.example.com", "second page should not be rendered")
}

func TestCertificatesPage_Localized(t *testing.T) {
	h, _ := setupTestHandlers(t, features.Hosts(1)...)

	req := httptest.NewRequest(http.MethodGet, "/certificates", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	rec := httptest.NewRecorder()
	h.CertificatesPage(rec, req)

	assert.Contains(t, rec.Body.String(), "Eingereicht")
}

func TestCertificatesPage_TabFromQuery(t *testing.T) {
	h, _ := setupTestHandlers(t,
		features.TestCertificate{CommonName: "approved.example.com", Status: core.StatusApproved},
		features.TestCertificate{CommonName: "pending.example.com", Status: core.StatusSubmitted},
	)

	req := httptest.NewRequest(http.MethodGet, "/certificates?tab=3", nil)
	rec := httptest.NewRecorder()
	h.CertificatesPage(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "approved.example.com")
	assert.NotContains(t, body, "pending.example.com")
	assert.Contains(t, rec.Header().Get("Set-Cookie"), common.SessionName+"=", "tab should be remembered")
}

func TestCertificatesPage_RemembersPageSize(t *testing.T) {
	h, fixture := setupTestHandlers(t, features.Hosts(7)...)

	// Store a preference the way SetPageSize does.
	seed := httptest.NewRequest(http.MethodGet, "/", nil)
	seedRec := httptest.NewRecorder()
	require.NoError(t, common.SavePrefs(fixture.SessionStore, seedRec, seed, common.Prefs{PageSize: 10, Tab: core.StatusAny}))

	req := httptest.NewRequest(http.MethodGet, "/certificates", nil)
	for _, c := range seedRec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.CertificatesPage(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "Page 1 of 1, 7 total")
	assert.Contains(t, body, "host01.example.com")
}

// =============================================================================
// CertificatesUpdates Tests - one mounted controller per SSE connection
// =============================================================================

func TestCertificatesUpdates_MountsAndStreams(t *testing.T) {
	h, _ := setupTestHandlers(t, features.Hosts(3)...)

	req := getSignals(t, "/certificates/updates", ViewSignals{View: "v1", PageSize: 5, Tab: core.StatusAny})
	ctx, cancel := context.WithTimeout(req.Context(), 300*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.CertificatesUpdates(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.views.len(), "view should be mounted while connected")

	<-done
	assert.Equal(t, 0, h.views.len(), "view should be unmounted on disconnect")

	body := rec.Body.String()
	assert.GreaterOrEqual(t, strings.Count(body, "event:"), 1)
	assert.Contains(t, body, "host01.example.com")
	assert.Contains(t, body, "certificates-tabs")
}

func TestCertificatesUpdates_ReloadsOnPulse(t *testing.T) {
	h, fixture := setupTestHandlers(t, features.Hosts(2)...)

	req := getSignals(t, "/certificates/updates", ViewSignals{View: "v1", PageSize: 5, Tab: core.StatusAny})
	ctx, cancel := context.WithTimeout(req.Context(), 300*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.CertificatesUpdates(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	fixture.Seed(t, features.TestCertificate{CommonName: "late.example.com", Status: core.StatusDraft}, 10)
	fixture.Bus.Pulse()

	<-done
	assert.Contains(t, rec.Body.String(), "late.example.com", "pulse should reload the view")
}

func TestCertificatesUpdates_MissingView(t *testing.T) {
	h, _ := setupTestHandlers(t)

	req := getSignals(t, "/certificates/updates", ViewSignals{})
	rec := httptest.NewRecorder()
	h.CertificatesUpdates(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// View action Tests
// =============================================================================

func TestViewActions(t *testing.T) {
	tests := []struct {
		name    string
		handler func(h *Handlers) http.HandlerFunc
		signals ViewSignals
		check   func(t *testing.T, v *view)
		notice  string
	}{
		{
			name:    "page moves to second page",
			handler: func(h *Handlers) http.HandlerFunc { return h.SetPage },
			signals: ViewSignals{Page: 1},
			check: func(t *testing.T, v *view) {
				assert.Equal(t, 1, v.ctrl.State().Page)
				assert.Len(t, v.ctrl.View().Rows, 2)
			},
		},
		{
			name:    "negative page is rejected",
			handler: func(h *Handlers) http.HandlerFunc { return h.SetPage },
			signals: ViewSignals{Page: -1},
			notice:  "page must not be negative",
		},
		{
			name:    "page size changes",
			handler: func(h *Handlers) http.HandlerFunc { return h.SetPageSize },
			signals: ViewSignals{PageSize: 10, Tab: core.StatusAny},
			check: func(t *testing.T, v *view) {
				assert.Len(t, v.ctrl.View().Rows, 7)
			},
		},
		{
			name:    "unsupported page size is rejected",
			handler: func(h *Handlers) http.HandlerFunc { return h.SetPageSize },
			signals: ViewSignals{PageSize: 7},
			notice:  "page size must be one of",
		},
		{
			name:    "sort by common name",
			handler: func(h *Handlers) http.HandlerFunc { return h.Sort },
			signals: ViewSignals{Sort: "common_name"},
			check: func(t *testing.T, v *view) {
				assert.Equal(t, "host01.example.com", commonNames(v)[0])
			},
		},
		{
			name:    "unsortable field is rejected",
			handler: func(h *Handlers) http.HandlerFunc { return h.Sort },
			signals: ViewSignals{Sort: "pem"},
			notice:  "not sortable",
		},
		{
			name:    "filter narrows rows",
			handler: func(h *Handlers) http.HandlerFunc { return h.Filter },
			signals: ViewSignals{Filter: "common_name^host06"},
			check: func(t *testing.T, v *view) {
				assert.Equal(t, []string{"host06.example.com"}, commonNames(v))
			},
		},
		{
			name:    "bad filter is rejected",
			handler: func(h *Handlers) http.HandlerFunc { return h.Filter },
			signals: ViewSignals{Filter: "nonsense"},
			notice:  "invalid filter expression",
		},
		{
			name:    "tab scopes to a status",
			handler: func(h *Handlers) http.HandlerFunc { return h.Tab },
			signals: ViewSignals{Tab: int(core.StatusApproved), PageSize: 5},
			check: func(t *testing.T, v *view) {
				assert.Equal(t, int(core.StatusApproved), v.ctrl.State().StatusFacet)
				assert.Empty(t, v.ctrl.View().Rows)
			},
		},
		{
			name:    "unknown tab is rejected",
			handler: func(h *Handlers) http.HandlerFunc { return h.Tab },
			signals: ViewSignals{Tab: 42},
			notice:  "unknown status tab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := setupTestHandlers(t, features.Hosts(7)...)
			v := mountView(t, h, "v1")

			rec := httptest.NewRecorder()
			tt.handler(h)(rec, postSignals(t, "/certificates/views/v1/x", tt.signals, "view", "v1"))
			v.ctrl.Wait()

			assert.Equal(t, http.StatusOK, rec.Code)
			if tt.notice != "" {
				assert.Contains(t, rec.Body.String(), tt.notice)
				return
			}
			assert.NotContains(t, rec.Body.String(), "notice-error")
			tt.check(t, v)
		})
	}
}

func TestViewActions_UnknownView(t *testing.T) {
	h, _ := setupTestHandlers(t)

	rec := httptest.NewRecorder()
	h.SetPage(rec, postSignals(t, "/certificates/views/nope/page", ViewSignals{Page: 1}, "view", "nope"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetPageSize_RemembersChoice(t *testing.T) {
	h, _ := setupTestHandlers(t, features.Hosts(3)...)
	mountView(t, h, "v1")

	rec := httptest.NewRecorder()
	h.SetPageSize(rec, postSignals(t, "/certificates/views/v1/size", ViewSignals{PageSize: 25}, "view", "v1"))

	assert.Contains(t, rec.Header().Get("Set-Cookie"), common.SessionName+"=")
}

func TestSearch_ResetsPageAfterQuietPeriod(t *testing.T) {
	h, _ := setupTestHandlers(t, features.Hosts(12)...)
	v := mountView(t, h, "v1")
	require.NoError(t, v.ctrl.SetPage(2))
	v.ctrl.Wait()

	rec := httptest.NewRecorder()
	h.Search(rec, postSignals(t, "/certificates/views/v1/search", ViewSignals{Search: "host1"}, "view", "v1"))

	assert.Eventually(t, func() bool { return !v.ctrl.SearchPending() }, time.Second, 5*time.Millisecond)
	v.ctrl.Wait()
	assert.Equal(t, 0, v.ctrl.State().Page)
	assert.Equal(t, "host1", v.ctrl.State().SearchText)
	assert.Len(t, v.ctrl.View().Rows, 3)
}

func TestTab_PulsesBus(t *testing.T) {
	h, fixture := setupTestHandlers(t, features.Hosts(1)...)
	mountView(t, h, "v1")

	before := fixture.Bus.Ticket()
	rec := httptest.NewRecorder()
	h.Tab(rec, postSignals(t, "/certificates/views/v1/tab", ViewSignals{Tab: int(core.StatusDraft)}, "view", "v1"))

	assert.Equal(t, before+1, fixture.Bus.Ticket())
}

// =============================================================================
// RowAction Tests
// =============================================================================

func TestRowAction(t *testing.T) {
	tests := []struct {
		name       string
		status     core.Status
		action     string
		wantStatus core.Status
		wantNotice string
	}{
		{name: "review submitted", status: core.StatusSubmitted, action: "review", wantStatus: core.StatusUnderReview},
		{name: "approve submitted", status: core.StatusSubmitted, action: "approve", wantStatus: core.StatusApproved},
		{name: "reject under review", status: core.StatusUnderReview, action: "reject", wantStatus: core.StatusRejected},
		{name: "revoke approved", status: core.StatusApproved, action: "revoke", wantStatus: core.StatusRevoked},
		{name: "revoke submitted is not allowed", status: core.StatusSubmitted, action: "revoke", wantStatus: core.StatusSubmitted, wantNotice: "status transition not allowed"},
		{name: "unknown action", status: core.StatusSubmitted, action: "burn", wantStatus: core.StatusSubmitted, wantNotice: "unknown action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fixture := setupTestHandlers(t, features.TestCertificate{CommonName: "a.example.com", Status: tt.status})
			v := mountView(t, h, "v1")
			id := fixture.IDs[0]

			rec := httptest.NewRecorder()
			h.RowAction(rec, postSignals(t, "/x", ViewSignals{}, "view", "v1", "id", id, "action", tt.action))

			cert, err := fixture.Store.GetCertificate(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, cert.Status)

			if tt.wantNotice != "" {
				assert.Contains(t, rec.Body.String(), tt.wantNotice)
				assert.Zero(t, fixture.Bus.Ticket())
				return
			}
			assert.EqualValues(t, 1, fixture.Bus.Ticket(), "row action should pulse the bus")
			rows := v.ctrl.View().Rows
			require.Len(t, rows, 1)
			assert.Equal(t, int(tt.wantStatus), rows[0][core.FieldStatus], "view should be refetched")
		})
	}
}

func TestRowAction_Verify(t *testing.T) {
	h, fixture := setupTestHandlers(t, features.TestCertificate{CommonName: "a.example.com", Status: core.StatusApproved})
	mountView(t, h, "v1")

	rec := httptest.NewRecorder()
	h.RowAction(rec, postSignals(t, "/x", ViewSignals{}, "view", "v1", "id", fixture.IDs[0], "action", "verify"))

	cert, err := fixture.Store.GetCertificate(context.Background(), fixture.IDs[0])
	require.NoError(t, err)
	assert.True(t, cert.Verified)
}

func TestRowAction_ActingViewIsNotPinged(t *testing.T) {
	h, fixture := setupTestHandlers(t, features.TestCertificate{CommonName: "a.example.com", Status: core.StatusSubmitted})
	acting := mountView(t, h, "v1")
	other := mountView(t, h, "v2")

	rec := httptest.NewRecorder()
	h.RowAction(rec, postSignals(t, "/x", ViewSignals{}, "view", "v1", "id", fixture.IDs[0], "action", "approve"))

	select {
	case <-other.updates:
	default:
		t.Fatal("other view should be pinged")
	}
	select {
	case <-acting.updates:
		t.Fatal("acting view already refetched and must not reload again")
	default:
	}
	assert.Equal(t, int(core.StatusApproved), acting.ctrl.View().Rows[0][core.FieldStatus])
}

func TestRowAction_EscapedID(t *testing.T) {
	tests := []struct {
		name     string
		id       func(fixture *features.TestFixture) string
		wantCode int
	}{
		{name: "escaped id is decoded", id: func(f *features.TestFixture) string { return url.PathEscape(f.IDs[0]) }, wantCode: http.StatusOK},
		{name: "malformed escape", id: func(*features.TestFixture) string { return "%zz" }, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fixture := setupTestHandlers(t, features.TestCertificate{CommonName: "a.example.com", Status: core.StatusSubmitted})
			mountView(t, h, "v1")

			rec := httptest.NewRecorder()
			h.RowAction(rec, postSignals(t, "/x", ViewSignals{}, "view", "v1", "id", tt.id(fixture), "action", "approve"))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

// =============================================================================
// Export and Download Tests
// =============================================================================

var downloadPattern = regexp.MustCompile(`/certificates/downloads/([0-9a-f-]{36})/(export_\d{4}-\d{2}-\d{2}\.csv)`)

func TestExport_SingleUseDownload(t *testing.T) {
	h, _ := setupTestHandlers(t, features.Hosts(3)...)
	mountView(t, h, "v1")

	rec := httptest.NewRecorder()
	h.Export(rec, postSignals(t, "/x", ViewSignals{}, "view", "v1"))

	match := downloadPattern.FindStringSubmatch(rec.Body.String())
	require.Len(t, match, 3, "export should redirect to a download, got %s", rec.Body.String())

	download := func() *httptest.ResponseRecorder {
		req := features.RequestWithPathParam(httptest.NewRequest(http.MethodGet, match[0], nil), "token", match[1], "name", match[2])
		rec := httptest.NewRecorder()
		h.Download(rec, req)
		return rec
	}

	first := download()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Header().Get("Content-Disposition"), match[2])
	assert.True(t, strings.HasPrefix(first.Body.String(), "ID,Common Name,"))
	assert.Equal(t, 4, strings.Count(first.Body.String(), "\n")+1, "header and three rows")

	second := download()
	assert.Equal(t, http.StatusNotFound, second.Code, "downloads are single use")
}

func TestExport_EmptyResult(t *testing.T) {
	h, _ := setupTestHandlers(t)
	mountView(t, h, "v1")

	rec := httptest.NewRecorder()
	h.Export(rec, postSignals(t, "/x", ViewSignals{}, "view", "v1"))

	body := rec.Body.String()
	assert.Contains(t, body, "notice-info")
	assert.Contains(t, body, "nothing to export")
	assert.NotContains(t, body, "/certificates/downloads/")
}

func TestDownload_InvalidToken(t *testing.T) {
	h, _ := setupTestHandlers(t)

	req := features.RequestWithPathParam(httptest.NewRequest(http.MethodGet, "/x", nil), "token", "../etc", "name", "passwd")
	rec := httptest.NewRecorder()
	h.Download(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Submit Tests
// =============================================================================

func TestSubmit(t *testing.T) {
	h, fixture := setupTestHandlers(t)

	rec := httptest.NewRecorder()
	h.Submit(rec, postSignals(t, "/certificates/submit", SubmitSignals{
		CommonName: " new.example.com ",
		Applicant:  "ann",
		Email:      "ann@example.com",
	}))

	assert.Contains(t, rec.Body.String(), "Application for new.example.com submitted.")
	assert.EqualValues(t, 1, fixture.Bus.Ticket())

	page, err := fixture.Store.ListCertificates(context.Background(), core.PageQuery{PageSize: 5})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "new.example.com", page.Data[0][core.FieldCommonName])
	assert.Equal(t, int(core.StatusSubmitted), page.Data[0][core.FieldStatus])
}

func TestSubmit_RequiresFields(t *testing.T) {
	h, fixture := setupTestHandlers(t)

	rec := httptest.NewRecorder()
	h.Submit(rec, postSignals(t, "/certificates/submit", SubmitSignals{CommonName: "x.example.com"}))

	assert.Contains(t, rec.Body.String(), "required")
	assert.Zero(t, fixture.Bus.Ticket())
}

// =============================================================================
// Component helpers
// =============================================================================

func TestNextSort(t *testing.T) {
	tests := []struct {
		current core.Sort
		field   string
		want    string
	}{
		{nil, "common_name", "common_name"},
		{core.Sort{{Field: "common_name"}}, "common_name", "-common_name"},
		{core.Sort{{Field: "common_name", Desc: true}}, "common_name", ""},
		{core.Sort{{Field: "email"}}, "common_name", "common_name"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextSort(tt.current, tt.field))
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, core.StatusApproved, statusOf(core.Row{core.FieldStatus: 3}))
	assert.Equal(t, core.StatusRejected, statusOf(core.Row{core.FieldStatus: float64(4)}))
	assert.Equal(t, core.StatusRevoked, statusOf(core.Row{core.FieldStatus: core.StatusRevoked}))
	assert.Equal(t, core.Status(-1), statusOf(core.Row{}))
}
