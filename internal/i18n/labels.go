// Package i18n holds the translated display strings of certdesk.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

var translations = map[language.Tag]map[string]string{
	language.English: {
		"status.draft":        "Draft",
		"status.submitted":    "Submitted",
		"status.under_review": "Under review",
		"status.approved":     "Approved",
		"status.rejected":     "Rejected",
		"status.revoked":      "Revoked",
		"status.unknown":      "Unknown",
		"status.any":          "All",
	},
	language.German: {
		"status.draft":        "Entwurf",
		"status.submitted":    "Eingereicht",
		"status.under_review": "In Prüfung",
		"status.approved":     "Genehmigt",
		"status.rejected":     "Abgelehnt",
		"status.revoked":      "Widerrufen",
		"status.unknown":      "Unbekannt",
		"status.any":          "Alle",
	},
}

// Supported lists the available languages; the first is the fallback.
var Supported = []language.Tag{language.English, language.German}

var (
	cat     = buildCatalog()
	matcher = language.NewMatcher(Supported)
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range translations {
		for key, msg := range msgs {
			_ = b.SetString(tag, key, msg)
		}
	}
	return b
}

// Match picks the best supported language for an Accept-Language header.
func Match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Supported[0]
	}
	_, idx, _ := matcher.Match(tags...)
	return Supported[idx]
}

// Labels translates display strings for one language.
type Labels struct {
	p *message.Printer
}

// For returns the labels of tag.
func For(tag language.Tag) Labels {
	return Labels{p: message.NewPrinter(tag, message.Catalog(cat))}
}

// Status returns the display label of a status.
func (l Labels) Status(s core.Status) string {
	return l.p.Sprintf("status." + s.Key())
}

// Facet returns the tab label of a facet value.
func (l Labels) Facet(facet int) string {
	if facet == core.StatusAny {
		return l.p.Sprintf("status.any")
	}
	return l.Status(core.Status(facet))
}
