// Package features provides shared test utilities for UI feature tests.
package features

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/certdesk/internal/artifact"
	"github.com/leapstack-labs/certdesk/internal/refresh"
	"github.com/leapstack-labs/certdesk/internal/state"
	"github.com/leapstack-labs/certdesk/internal/testutil"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// TestCertificate is a helper to create test certificates with minimal boilerplate.
type TestCertificate struct {
	CommonName   string
	Organization string
	Applicant    string
	Status       core.Status
}

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	Store        *state.Store
	Bus          *refresh.Bus
	SessionStore *sessions.CookieStore
	Downloads    *artifact.Sink

	// IDs of the seeded certificates, in seeding order.
	IDs []string
}

// SetupTestFixture creates an in-memory store seeded with certs, a bus, a
// session store and an in-memory download sink.
func SetupTestFixture(t *testing.T, certs ...TestCertificate) *TestFixture {
	t.Helper()

	ctx := context.Background()
	store, err := state.Open(ctx, "sqlite", ":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	downloads, err := artifact.Open(ctx, "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = downloads.Close() })

	f := &TestFixture{
		Store:        store,
		Bus:          refresh.New(),
		SessionStore: NewTestSessionStore(),
		Downloads:    downloads,
	}
	for i, c := range certs {
		f.IDs = append(f.IDs, f.Seed(t, c, i))
	}
	return f
}

// Seed inserts one certificate. i orders creation times.
func (f *TestFixture) Seed(t *testing.T, c TestCertificate, i int) string {
	t.Helper()

	applicant := c.Applicant
	if applicant == "" {
		applicant = "tester"
	}
	cert := &core.Certificate{
		CommonName:   c.CommonName,
		Organization: c.Organization,
		Applicant:    applicant,
		Email:        fmt.Sprintf("%s@example.com", applicant),
		Status:       c.Status,
		CreatedAt:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
	}
	require.NoError(t, f.Store.CreateCertificate(context.Background(), cert))
	return cert.ID
}

// Hosts returns n submitted certificates named hostNN.example.com.
func Hosts(n int) []TestCertificate {
	out := make([]TestCertificate, n)
	for i := range out {
		out[i] = TestCertificate{
			CommonName:   fmt.Sprintf("host%02d.example.com", i+1),
			Organization: "Acme",
			Status:       core.StatusSubmitted,
		}
	}
	return out
}

// RequestWithPathParam wraps a request with chi URL params, given as
// alternating keys and values.
func RequestWithPathParam(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// NewTestSessionStore creates a session store for testing.
func NewTestSessionStore() *sessions.CookieStore {
	return sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!"))
}
