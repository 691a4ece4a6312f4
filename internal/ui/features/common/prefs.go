package common

import (
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/certdesk/internal/table"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// SessionName is the cookie holding per-browser view preferences.
const SessionName = "certdesk"

const (
	keyPageSize = "page_size"
	keyTab      = "tab"
)

// Prefs are the view choices remembered per browser.
type Prefs struct {
	PageSize int
	Tab      int
}

// DefaultPrefs are used when the browser has no valid session.
func DefaultPrefs() Prefs {
	return Prefs{PageSize: table.DefaultPageSize, Tab: core.StatusAny}
}

// LoadPrefs reads the preferences of the requesting browser.
// Invalid or missing values fall back to DefaultPrefs.
func LoadPrefs(store sessions.Store, r *http.Request) Prefs {
	p := DefaultPrefs()
	sess, err := store.Get(r, SessionName)
	if err != nil {
		return p
	}
	if n, ok := sess.Values[keyPageSize].(int); ok && table.ValidPageSize(n) {
		p.PageSize = n
	}
	if n, ok := sess.Values[keyTab].(int); ok && (n == core.StatusAny || core.Status(n).Valid()) {
		p.Tab = n
	}
	return p
}

// SavePrefs stores p in the browser's session cookie. It must run before
// the response headers are written.
func SavePrefs(store sessions.Store, w http.ResponseWriter, r *http.Request, p Prefs) error {
	sess, err := store.Get(r, SessionName)
	if err != nil && sess == nil {
		return err
	}
	sess.Values[keyPageSize] = p.PageSize
	sess.Values[keyTab] = p.Tab
	return sess.Save(r, w)
}
