package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"0", StatusDraft, false},
		{"3", StatusApproved, false},
		{"under_review", StatusUnderReview, false},
		{"revoked", StatusRevoked, false},
		{"6", 0, true},
		{"-1", 0, true},
		{"pending", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusSubmitted, true},
		{StatusSubmitted, StatusUnderReview, true},
		{StatusSubmitted, StatusApproved, true},
		{StatusUnderReview, StatusRejected, true},
		{StatusApproved, StatusRevoked, true},
		{StatusDraft, StatusApproved, false},
		{StatusRejected, StatusApproved, false},
		{StatusRevoked, StatusApproved, false},
		{StatusApproved, StatusDraft, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.Key()+"->"+tt.to.Key(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestCertificate_Row(t *testing.T) {
	from := time.Date(2025, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600))
	c := &Certificate{
		ID:         "c1",
		CommonName: "a.example.com",
		Status:     StatusApproved,
		Serial:     "01",
		ValidFrom:  &from,
		PEM:        "-----BEGIN CERTIFICATE-----",
	}

	row := c.Row()
	assert.Equal(t, "c1", row.ID())
	assert.Equal(t, 3, row[FieldStatus])
	assert.Equal(t, "01", row[FieldSerial])
	assert.Nil(t, row[FieldFingerprint])
	assert.Nil(t, row[FieldValidUntil])
	assert.Equal(t, time.UTC, row[FieldValidFrom].(time.Time).Location())
	for _, v := range row {
		assert.NotEqual(t, c.PEM, v)
	}
}
