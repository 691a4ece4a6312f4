package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// --- Table reads ---

// ListCertificates returns one page of certificates matching q, together with
// the total number of matches.
func (s *Store) ListCertificates(ctx context.Context, q core.PageQuery) (core.Page, error) {
	if q.Page < 0 || q.PageSize <= 0 {
		return core.Page{}, fmt.Errorf("%w: page %d / page size %d", ErrInvalidQuery, q.Page, q.PageSize)
	}
	where, args, err := whereClause(q.SearchText, q.Filter, q.Status)
	if err != nil {
		return core.Page{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	order, err := orderClause(q.Sort)
	if err != nil {
		return core.Page{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM certificates"+where), args...).Scan(&total); err != nil {
		return core.Page{}, fmt.Errorf("failed to count certificates: %w", err)
	}

	query := "SELECT " + certificateColumns + " FROM certificates" + where + order + " LIMIT ? OFFSET ?"
	pageArgs := append(append([]any{}, args...), q.PageSize, q.Page*q.PageSize)
	rows, err := s.queryRows(ctx, query, pageArgs...)
	if err != nil {
		return core.Page{}, err
	}

	s.logger.Debug("listed certificates",
		slog.Int("page", q.Page),
		slog.Int("page_size", q.PageSize),
		slog.Int("rows", len(rows)),
		slog.Int("total", total))
	return core.Page{Data: rows, Total: total}, nil
}

// ExportCertificates returns every certificate matching req, unpaginated.
func (s *Store) ExportCertificates(ctx context.Context, req core.ExportRequest) ([]core.Row, error) {
	where, args, err := whereClause(req.SearchText, req.Filter, req.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	order, err := orderClause(req.Sort)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return s.queryRows(ctx, "SELECT "+certificateColumns+" FROM certificates"+where+order, args...)
}

func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]core.Row, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query certificates: %w", err)
	}
	defer rows.Close()

	out := []core.Row{}
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c.Row())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read certificates: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCertificate(sc scanner) (*core.Certificate, error) {
	c := &core.Certificate{}
	var status int
	var serial, fingerprint sql.NullString
	var validFrom, validUntil sql.NullTime

	err := sc.Scan(&c.ID, &c.CommonName, &c.Organization, &c.Applicant, &c.Email, &status,
		&serial, &fingerprint, &c.Verified, &validFrom, &validUntil, &c.CreatedAt, &c.UpdatedAt, &c.PEM)
	if err != nil {
		return nil, err
	}

	c.Status = core.Status(status)
	c.Serial = serial.String
	c.Fingerprint = fingerprint.String
	if validFrom.Valid {
		t := validFrom.Time.UTC()
		c.ValidFrom = &t
	}
	if validUntil.Valid {
		t := validUntil.Time.UTC()
		c.ValidUntil = &t
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// --- Certificate operations ---

// CreateCertificate inserts a new application. ID and timestamps are assigned
// when empty. A notification is recorded in the same transaction.
func (s *Store) CreateCertificate(ctx context.Context, cert *core.Certificate) error {
	if cert.CommonName == "" {
		return errors.New("common name is required")
	}
	if !cert.Status.Valid() {
		return fmt.Errorf("invalid status %d", cert.Status)
	}
	if cert.ID == "" {
		cert.ID = generateID()
	}
	now := time.Now().UTC()
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = now
	}
	cert.UpdatedAt = now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertCertificate(ctx, tx, cert); err != nil {
			return err
		}
		return s.notify(ctx, tx, cert.ID, fmt.Sprintf("%s created as %s", cert.CommonName, cert.Status.Key()))
	})
}

func (s *Store) insertCertificate(ctx context.Context, tx *sql.Tx, c *core.Certificate) error {
	_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO certificates
		(id, common_name, organization, applicant, email, status, serial, fingerprint, verified,
		 valid_from, valid_until, created_at, updated_at, pem)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.CommonName, c.Organization, c.Applicant, c.Email, int(c.Status),
		nullString(c.Serial), nullString(c.Fingerprint), c.Verified,
		nullTime(c.ValidFrom), nullTime(c.ValidUntil), c.CreatedAt.UTC(), c.UpdatedAt.UTC(), c.PEM,
	)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	return nil
}

// GetCertificate retrieves a certificate by ID.
func (s *Store) GetCertificate(ctx context.Context, id string) (*core.Certificate, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+certificateColumns+" FROM certificates WHERE id = ?"), id)
	c, err := scanCertificate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}
	return c, nil
}

// UpdateStatus moves a certificate to a new workflow status.
func (s *Store) UpdateStatus(ctx context.Context, id string, status core.Status) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current int
		var name string
		err := tx.QueryRowContext(ctx, s.rebind("SELECT status, common_name FROM certificates WHERE id = ?"), id).
			Scan(&current, &name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to read status: %w", err)
		}

		from := core.Status(current)
		if !from.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from.Key(), status.Key())
		}

		if _, err := tx.ExecContext(ctx, s.rebind("UPDATE certificates SET status = ?, updated_at = ? WHERE id = ?"),
			int(status), time.Now().UTC(), id); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		return s.notify(ctx, tx, id, fmt.Sprintf("%s moved from %s to %s", name, from.Key(), status.Key()))
	})
}

// MarkVerified records the outcome of a manual certificate verification.
func (s *Store) MarkVerified(ctx context.Context, id string, verified bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind("UPDATE certificates SET verified = ?, updated_at = ? WHERE id = ?"),
			verified, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to mark certificate: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		msg := "verification passed"
		if !verified {
			msg = "verification cleared"
		}
		return s.notify(ctx, tx, id, msg)
	})
}

// UpsertByFingerprint inserts an imported certificate or refreshes the
// issued-certificate fields of the existing record with the same fingerprint.
func (s *Store) UpsertByFingerprint(ctx context.Context, cert *core.Certificate) (bool, error) {
	if cert.Fingerprint == "" {
		return false, errors.New("fingerprint is required")
	}

	created := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, s.rebind("SELECT id FROM certificates WHERE fingerprint = ?"), cert.Fingerprint).Scan(&id)
		now := time.Now().UTC()

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if cert.ID == "" {
				cert.ID = generateID()
			}
			if cert.CreatedAt.IsZero() {
				cert.CreatedAt = now
			}
			cert.UpdatedAt = now
			if err := s.insertCertificate(ctx, tx, cert); err != nil {
				return err
			}
			created = true
			return s.notify(ctx, tx, cert.ID, fmt.Sprintf("%s imported", cert.CommonName))
		case err != nil:
			return fmt.Errorf("failed to look up fingerprint: %w", err)
		}

		cert.ID = id
		cert.UpdatedAt = now
		_, err = tx.ExecContext(ctx, s.rebind(`UPDATE certificates
			SET common_name = ?, organization = ?, serial = ?, valid_from = ?, valid_until = ?, pem = ?, updated_at = ?
			WHERE id = ?`),
			cert.CommonName, cert.Organization, nullString(cert.Serial),
			nullTime(cert.ValidFrom), nullTime(cert.ValidUntil), cert.PEM, now, id)
		if err != nil {
			return fmt.Errorf("failed to update imported certificate: %w", err)
		}
		return nil
	})
	return created, err
}

// CountByStatus returns the number of certificates per status. Every known
// status is present in the result.
func (s *Store) CountByStatus(ctx context.Context) (map[core.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM certificates GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.Status]int, len(core.Statuses))
	for _, st := range core.Statuses {
		counts[st] = 0
	}
	for rows.Next() {
		var status, n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[core.Status(status)] = n
	}
	return counts, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
