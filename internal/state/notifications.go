package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// DefaultNotificationLimit caps the activity feed when no limit is given.
const DefaultNotificationLimit = 20

func (s *Store) notify(ctx context.Context, tx *sql.Tx, certID, message string) error {
	_, err := tx.ExecContext(ctx,
		s.rebind("INSERT INTO notifications (id, certificate_id, message, created_at) VALUES (?, ?, ?, ?)"),
		generateID(), certID, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// ListNotifications returns the most recent notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, limit int) ([]*core.Notification, error) {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT id, certificate_id, message, created_at FROM notifications ORDER BY created_at DESC, id LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*core.Notification
	for rows.Next() {
		n := &core.Notification{}
		if err := rows.Scan(&n.ID, &n.CertificateID, &n.Message, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}
