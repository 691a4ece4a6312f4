// Package core defines the shared language of the certdesk system.
//
// This package contains:
//   - Domain entities (Certificate, Status, Notification)
//   - Query types exchanged with the backing collection (PageQuery, Page, ExportRequest)
//   - Service interfaces (Store)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
