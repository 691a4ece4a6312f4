package core

import "context"

// Store defines the interface for certificate persistence.
type Store interface {
	Close() error

	// Table operations
	ListCertificates(ctx context.Context, q PageQuery) (Page, error)
	ExportCertificates(ctx context.Context, req ExportRequest) ([]Row, error)

	// Certificate operations
	CreateCertificate(ctx context.Context, cert *Certificate) error
	GetCertificate(ctx context.Context, id string) (*Certificate, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	MarkVerified(ctx context.Context, id string, verified bool) error
	UpsertByFingerprint(ctx context.Context, cert *Certificate) (created bool, err error)

	// Aggregates and activity
	CountByStatus(ctx context.Context) (map[Status]int, error)
	ListNotifications(ctx context.Context, limit int) ([]*Notification, error)
}
