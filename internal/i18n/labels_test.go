package i18n

import (
	"testing"

	"github.com/leapstack-labs/certdesk/pkg/core"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestLabels_Status(t *testing.T) {
	tests := []struct {
		tag    language.Tag
		status core.Status
		want   string
	}{
		{language.English, core.StatusUnderReview, "Under review"},
		{language.English, core.StatusRevoked, "Revoked"},
		{language.German, core.StatusApproved, "Genehmigt"},
		{language.English, core.Status(42), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.tag.String()+"/"+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, For(tt.tag).Status(tt.status))
		})
	}
}

func TestLabels_Facet(t *testing.T) {
	assert.Equal(t, "All", For(language.English).Facet(core.StatusAny))
	assert.Equal(t, "Eingereicht", For(language.German).Facet(int(core.StatusSubmitted)))
}

func TestMatch(t *testing.T) {
	tests := []struct {
		header string
		want   language.Tag
	}{
		{"", language.English},
		{"de-DE,de;q=0.9,en;q=0.8", language.German},
		{"fr-FR", language.English},
		{"not a header;;", language.English},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.header))
		})
	}
}
