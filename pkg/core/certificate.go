package core

import (
	"fmt"
	"strconv"
	"time"
)

// Status is the workflow state of a certificate application.
// Statuses double as facets: the hosting view supplies one to scope a table.
type Status int

// Status constants. The numeric values are part of the wire format.
const (
	StatusDraft Status = iota
	StatusSubmitted
	StatusUnderReview
	StatusApproved
	StatusRejected
	StatusRevoked
)

// StatusAny is the facet value meaning "every status".
const StatusAny = -1

// Statuses lists every known status in display order.
var Statuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusUnderReview,
	StatusApproved,
	StatusRejected,
	StatusRevoked,
}

// Key returns the stable, untranslated key of the status.
func (s Status) Key() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusSubmitted:
		return "submitted"
	case StatusUnderReview:
		return "under_review"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s >= StatusDraft && s <= StatusRevoked
}

// ParseStatus accepts either the numeric value or the key of a status.
func ParseStatus(s string) (Status, error) {
	if n, err := strconv.Atoi(s); err == nil {
		st := Status(n)
		if !st.Valid() {
			return 0, fmt.Errorf("unknown status: %d", n)
		}
		return st, nil
	}
	for _, st := range Statuses {
		if st.Key() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown status: %q", s)
}

// CanTransition reports whether an application may move from s to next.
func (s Status) CanTransition(next Status) bool {
	switch next {
	case StatusUnderReview:
		return s == StatusSubmitted
	case StatusApproved, StatusRejected:
		return s == StatusSubmitted || s == StatusUnderReview
	case StatusRevoked:
		return s == StatusApproved
	case StatusSubmitted:
		return s == StatusDraft
	default:
		return false
	}
}

// Certificate is a certificate application tracked by certdesk.
type Certificate struct {
	ID           string
	CommonName   string
	Organization string
	Applicant    string
	Email        string
	Status       Status
	// Serial and Fingerprint are set once a certificate has been issued or imported.
	Serial      string
	Fingerprint string
	Verified    bool
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// PEM is the encoded certificate, empty for applications not yet issued.
	PEM string
}

// Row projects the certificate onto a table row. PEM is never exposed.
func (c *Certificate) Row() Row {
	row := Row{
		FieldID:           c.ID,
		FieldCommonName:   c.CommonName,
		FieldOrganization: c.Organization,
		FieldApplicant:    c.Applicant,
		FieldEmail:        c.Email,
		FieldStatus:       int(c.Status),
		FieldSerial:       nullable(c.Serial),
		FieldFingerprint:  nullable(c.Fingerprint),
		FieldVerified:     c.Verified,
		FieldValidFrom:    nil,
		FieldValidUntil:   nil,
		FieldCreatedAt:    c.CreatedAt.UTC(),
		FieldUpdatedAt:    c.UpdatedAt.UTC(),
	}
	if c.ValidFrom != nil {
		row[FieldValidFrom] = c.ValidFrom.UTC()
	}
	if c.ValidUntil != nil {
		row[FieldValidUntil] = c.ValidUntil.UTC()
	}
	return row
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Notification is an entry of the activity feed shown next to the certificate table.
type Notification struct {
	ID            string
	CertificateID string
	Message       string
	CreatedAt     time.Time
}
