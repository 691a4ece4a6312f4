// Package common provides shared components and utilities for UI features.
package common

import (
	"net/http"
	"strconv"
	"time"

	"github.com/leapstack-labs/certdesk/internal/i18n"
)

// FormatTime renders a timestamp for table cells; zero and nil render empty.
func FormatTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04")
	case *time.Time:
		if t == nil {
			return ""
		}
		return FormatTime(*t)
	case string:
		return t
	default:
		return ""
	}
}

// Ago renders how long ago t was, coarsely.
func Ago(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour") + " ago"
	default:
		return t.UTC().Format(time.DateOnly)
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

// Labels returns the display strings for the language the request prefers.
func Labels(r *http.Request) i18n.Labels {
	return i18n.For(i18n.Match(r.Header.Get("Accept-Language")))
}
