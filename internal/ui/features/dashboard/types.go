// Package dashboard provides the landing page: a stat card per status and
// the latest notifications.
package dashboard

import (
	"time"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// StatCard is one status count on the dashboard.
type StatCard struct {
	Status core.Status
	Label  string
	Count  int
}

// Data is what the dashboard renders.
type Data struct {
	Cards         []StatCard
	Notifications []*core.Notification
	Now           time.Time
}

// Element ids patched by the updates stream.
const (
	statsID = "dashboard-stats"
	feedID  = "dashboard-feed"
)
