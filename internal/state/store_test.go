package state

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/certdesk/internal/testutil"
	"github.com/leapstack-labs/certdesk/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seed inserts n certificates named host01..hostNN with the given status,
// created one minute apart.
func seed(t *testing.T, s *Store, n int, status core.Status) []*core.Certificate {
	t.Helper()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*core.Certificate, n)
	for i := range out {
		c := &core.Certificate{
			CommonName:   fmt.Sprintf("host%02d.example.com", i+1),
			Organization: "Acme",
			Applicant:    "Ann",
			Email:        fmt.Sprintf("ops%02d@acme.test", i+1),
			Status:       status,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateCertificate(context.Background(), c))
		out[i] = c
	}
	return out
}

func TestLookupDialect(t *testing.T) {
	tests := []struct {
		driver  string
		want    Dialect
		wantErr bool
	}{
		{"", SQLite, false},
		{"sqlite", SQLite, false},
		{"postgres", Postgres, false},
		{"pgx", Postgres, false},
		{"mysql", Dialect{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got, err := LookupDialect(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialect_Rebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b IN (?, ?)"
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", Postgres.Rebind(q))
}

func TestStore_MigrationVersion(t *testing.T) {
	s := setupTestStore(t)
	v, err := s.MigrationVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestStore_ListCertificates_Pagination(t *testing.T) {
	s := setupTestStore(t)
	seed(t, s, 23, core.StatusSubmitted)
	ctx := context.Background()

	tests := []struct {
		name     string
		page     int
		wantRows int
		wantFirst string
	}{
		{"first page newest first", 0, 10, "host23.example.com"},
		{"middle page", 1, 10, "host13.example.com"},
		{"last page holds remainder", 2, 3, "host03.example.com"},
		{"past the end", 5, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.ListCertificates(ctx, core.PageQuery{Page: tt.page, PageSize: 10, Status: []int{1}})
			require.NoError(t, err)
			assert.Equal(t, 23, page.Total)
			require.Len(t, page.Data, tt.wantRows)
			if tt.wantRows > 0 {
				assert.Equal(t, tt.wantFirst, page.Data[0][core.FieldCommonName])
			}
		})
	}
}

func TestStore_ListCertificates_FacetSearchFilterSort(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seed(t, s, 4, core.StatusSubmitted)
	approved := seed(t, s, 2, core.StatusDraft)
	for _, c := range approved {
		require.NoError(t, s.UpdateStatus(ctx, c.ID, core.StatusSubmitted))
		require.NoError(t, s.UpdateStatus(ctx, c.ID, core.StatusApproved))
	}

	tests := []struct {
		name      string
		query     core.PageQuery
		wantTotal int
		wantFirst string
	}{
		{
			name:      "facet",
			query:     core.PageQuery{PageSize: 10, Status: []int{int(core.StatusApproved)}},
			wantTotal: 2,
		},
		{
			name:      "no facet",
			query:     core.PageQuery{PageSize: 10},
			wantTotal: 6,
		},
		{
			name:      "search is case-insensitive",
			query:     core.PageQuery{PageSize: 10, SearchText: "HOST03"},
			wantTotal: 1,
			wantFirst: "host03.example.com",
		},
		{
			name:      "search matches email",
			query:     core.PageQuery{PageSize: 10, SearchText: "ops04@"},
			wantTotal: 1,
			wantFirst: "host04.example.com",
		},
		{
			name:      "like wildcards are literal",
			query:     core.PageQuery{PageSize: 10, SearchText: "%"},
			wantTotal: 0,
		},
		{
			name: "filter predicate",
			query: core.PageQuery{PageSize: 10, Filter: core.Filter{
				{Field: core.FieldCommonName, Op: core.OpPrefix, Value: "host0"},
				{Field: core.FieldStatus, Op: core.OpEq, Value: "submitted"},
			}},
			wantTotal: 4,
		},
		{
			name:      "ascending sort",
			query:     core.PageQuery{PageSize: 10, Sort: core.Sort{{Field: core.FieldCommonName}}},
			wantTotal: 6,
			wantFirst: "host01.example.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.ListCertificates(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Len(t, page.Data, tt.wantTotal)
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, page.Data[0][core.FieldCommonName])
			}
		})
	}
}

func TestStore_ListCertificates_InvalidQuery(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.ListCertificates(ctx, core.PageQuery{PageSize: 10, Sort: core.Sort{{Field: "pem"}}})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = s.ListCertificates(ctx, core.PageQuery{PageSize: 10, Filter: core.Filter{{Field: "verified", Op: core.OpEq, Value: "maybe"}}})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = s.ListCertificates(ctx, core.PageQuery{PageSize: 0})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = s.ExportCertificates(ctx, core.ExportRequest{Filter: core.Filter{{Field: "pem", Op: core.OpEq, Value: "x"}}})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestStore_ExportCertificates(t *testing.T) {
	s := setupTestStore(t)
	seed(t, s, 12, core.StatusSubmitted)

	rows, err := s.ExportCertificates(context.Background(), core.ExportRequest{
		Sort:       core.Sort{{Field: core.FieldCommonName}},
		SearchText: "host1",
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "host10.example.com", rows[0][core.FieldCommonName])

	rows, err = s.ExportCertificates(context.Background(), core.ExportRequest{Status: []int{int(core.StatusRevoked)}})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_CertificateLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	c := seed(t, s, 1, core.StatusSubmitted)[0]

	got, err := s.GetCertificate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.CommonName, got.CommonName)
	assert.Equal(t, core.StatusSubmitted, got.Status)
	assert.False(t, got.Verified)

	require.NoError(t, s.UpdateStatus(ctx, c.ID, core.StatusApproved))
	require.NoError(t, s.MarkVerified(ctx, c.ID, true))
	err = s.UpdateStatus(ctx, c.ID, core.StatusSubmitted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, s.UpdateStatus(ctx, c.ID, core.StatusRevoked))

	got, err = s.GetCertificate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRevoked, got.Status)
	assert.True(t, got.Verified)

	notes, err := s.ListNotifications(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, notes, 4, "create, approve, verify and revoke")
	for _, n := range notes {
		assert.Equal(t, c.ID, n.CertificateID)
	}
}

func TestStore_NotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetCertificate(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateStatus(ctx, "missing", core.StatusApproved), ErrNotFound)
	assert.ErrorIs(t, s.MarkVerified(ctx, "missing", true), ErrNotFound)
}

func TestStore_UpsertByFingerprint(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	until := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	cert := &core.Certificate{
		CommonName:  "imported.example.com",
		Status:      core.StatusApproved,
		Serial:      "0A",
		Fingerprint: "ab12",
		ValidUntil:  &until,
		PEM:         "pem-1",
	}
	created, err := s.UpsertByFingerprint(ctx, cert)
	require.NoError(t, err)
	assert.True(t, created)
	firstID := cert.ID

	again := &core.Certificate{CommonName: "renamed.example.com", Status: core.StatusApproved, Fingerprint: "ab12", Serial: "0B", PEM: "pem-2"}
	created, err = s.UpsertByFingerprint(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, firstID, again.ID)

	got, err := s.GetCertificate(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "renamed.example.com", got.CommonName)
	assert.Equal(t, "0B", got.Serial)
	assert.Nil(t, got.ValidUntil)

	_, err = s.UpsertByFingerprint(ctx, &core.Certificate{CommonName: "x"})
	assert.Error(t, err)
}

func TestStore_CountByStatus(t *testing.T) {
	s := setupTestStore(t)
	seed(t, s, 3, core.StatusSubmitted)
	seed(t, s, 1, core.StatusDraft)

	counts, err := s.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[core.StatusSubmitted])
	assert.Equal(t, 1, counts[core.StatusDraft])
	assert.Equal(t, 0, counts[core.StatusRevoked])
	assert.Len(t, counts, len(core.Statuses))
}

func TestStore_CreateValidation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.CreateCertificate(ctx, &core.Certificate{}))
	assert.Error(t, s.CreateCertificate(ctx, &core.Certificate{CommonName: "x", Status: 9}))
}

// --- Failure paths ---

func TestStore_ListCertificates_DatabaseErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantMsg string
	}{
		{
			name: "count fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("disk I/O error"))
			},
			wantMsg: "failed to count certificates",
		},
		{
			name: "select fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
				mock.ExpectQuery("SELECT id, common_name").WillReturnError(errors.New("connection reset"))
			},
			wantMsg: "failed to query certificates",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.setup(mock)
			s := New(db, Postgres, testutil.NewTestLogger(t))

			_, err = s.ListCertificates(context.Background(), core.PageQuery{PageSize: 5})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_UpdateStatus_RollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, common_name FROM certificates WHERE id = \$1`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "common_name"}).AddRow(1, "a.example.com"))
	mock.ExpectExec("UPDATE certificates SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	s := New(db, Postgres, nil)
	err = s.UpdateStatus(context.Background(), "c1", core.StatusApproved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record notification")
	assert.NoError(t, mock.ExpectationsWereMet())
}
