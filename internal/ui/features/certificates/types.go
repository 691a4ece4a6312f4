// Package certificates provides the certificate list: one live table view
// per browser connection, its actions, exports and the submission dialog.
package certificates

import (
	"log/slog"
	"time"

	"github.com/leapstack-labs/certdesk/internal/table"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// ViewSignals are the Datastar signals a certificate view posts.
type ViewSignals struct {
	View     string `json:"view"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Search   string `json:"search"`
	Sort     string `json:"sort"`
	Filter   string `json:"filter"`
	Tab      int    `json:"tab"`
}

// state converts the signals into a table state. Unparseable sort and
// filter expressions are dropped.
func (s ViewSignals) state() table.State {
	st := table.State{
		Page:        max(s.Page, 0),
		PageSize:    s.PageSize,
		SearchText:  s.Search,
		StatusFacet: s.Tab,
	}
	if f, err := core.ParseFilter(s.Filter); err == nil {
		st.Filter = f
	}
	if o, err := core.ParseSort(s.Sort); err == nil {
		st.Sort = o
	}
	return st
}

// SubmitSignals are posted by the submission dialog.
type SubmitSignals struct {
	CommonName   string `json:"commonName"`
	Organization string `json:"organization"`
	Applicant    string `json:"applicant"`
	Email        string `json:"email"`
}

// Options configures the certificate views.
type Options struct {
	// QuietPeriod is the search debounce. Zero means table.DefaultQuietPeriod.
	QuietPeriod time.Duration
	// DebounceFetch delays the search fetch until the quiet period ends.
	DebounceFetch bool
	Logger        *slog.Logger
	IsDev         bool
}

// rowActions maps a row action name onto its target status.
var rowActions = map[string]core.Status{
	"review":  core.StatusUnderReview,
	"approve": core.StatusApproved,
	"reject":  core.StatusRejected,
	"revoke":  core.StatusRevoked,
}

// Element ids patched by the updates stream.
const (
	tableID = "certificates-table"
	tabsID  = "certificates-tabs"
)
