// Package importer loads issued X.509 certificates from PEM files into the
// store, either once or continuously from a watched directory.
package importer

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// ErrNoCertificates is returned for files without a CERTIFICATE block.
var ErrNoCertificates = errors.New("no PEM certificate found")

// Extensions are the file extensions picked up by imports.
var Extensions = []string{".pem", ".crt"}

// Importable reports whether path has an importable extension.
func Importable(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ParsePEM decodes every CERTIFICATE block in data. Other block types,
// such as private keys, are skipped.
func ParsePEM(data []byte) ([]*core.Certificate, error) {
	var out []*core.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		out = append(out, FromX509(cert))
	}
	if len(out) == 0 {
		return nil, ErrNoCertificates
	}
	return out, nil
}

// FromX509 maps an issued certificate onto an approved application.
func FromX509(cert *x509.Certificate) *core.Certificate {
	sum := sha256.Sum256(cert.Raw)
	from := cert.NotBefore.UTC()
	until := cert.NotAfter.UTC()

	c := &core.Certificate{
		CommonName:  cert.Subject.CommonName,
		Applicant:   "import",
		Status:      core.StatusApproved,
		Serial:      strings.ToUpper(cert.SerialNumber.Text(16)),
		Fingerprint: hex.EncodeToString(sum[:]),
		ValidFrom:   &from,
		ValidUntil:  &until,
		PEM:         string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})),
	}
	if len(cert.Subject.Organization) > 0 {
		c.Organization = cert.Subject.Organization[0]
	}
	if len(cert.EmailAddresses) > 0 {
		c.Email = cert.EmailAddresses[0]
	}
	if c.CommonName == "" && len(cert.DNSNames) > 0 {
		c.CommonName = cert.DNSNames[0]
	}
	if c.CommonName == "" {
		c.CommonName = c.Fingerprint[:16]
	}
	return c
}
