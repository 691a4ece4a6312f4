package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/leapstack-labs/certdesk/internal/cli/output"
	"github.com/leapstack-labs/certdesk/pkg/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout of a fixture file.
type SeedFile struct {
	Certificates []SeedCertificate `yaml:"certificates"`
}

// SeedCertificate is one application in a fixture file.
type SeedCertificate struct {
	CommonName   string     `yaml:"common_name"`
	Organization string     `yaml:"organization"`
	Applicant    string     `yaml:"applicant"`
	Email        string     `yaml:"email"`
	Status       string     `yaml:"status"`
	Serial       string     `yaml:"serial"`
	Verified     bool       `yaml:"verified"`
	ValidFrom    *time.Time `yaml:"valid_from"`
	ValidUntil   *time.Time `yaml:"valid_until"`
	CreatedAt    *time.Time `yaml:"created_at"`
}

func (s SeedCertificate) certificate() (*core.Certificate, error) {
	status := core.StatusSubmitted
	if s.Status != "" {
		st, err := core.ParseStatus(s.Status)
		if err != nil {
			return nil, err
		}
		status = st
	}
	c := &core.Certificate{
		CommonName:   s.CommonName,
		Organization: s.Organization,
		Applicant:    s.Applicant,
		Email:        s.Email,
		Status:       status,
		Serial:       s.Serial,
		Verified:     s.Verified,
		ValidFrom:    s.ValidFrom,
		ValidUntil:   s.ValidUntil,
	}
	if s.CreatedAt != nil {
		c.CreatedAt = s.CreatedAt.UTC()
	}
	return c, nil
}

// seedOutput is the JSON shape of a seed run.
type seedOutput struct {
	File    string `json:"file"`
	Created int    `json:"created"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load certificate applications from a YAML fixture",
		Long: `Load certificate applications from a YAML fixture file into the store.

Each entry under "certificates" needs a common_name; status defaults to
submitted and accepts either a key (under_review) or a number (2).`,
		Example: `  # Load demo data
  certdesk seed testdata/certificates.yaml

  # Load into Postgres
  certdesk seed fixtures.yaml --driver pgx --dsn postgres://localhost/certdesk`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args[0])
		},
	}

	return cmd
}

func runSeed(cmd *cobra.Command, path string) error {
	seeds, err := readSeedFile(path)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewStoreCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	for i, s := range seeds.Certificates {
		c, err := s.certificate()
		if err != nil {
			return fmt.Errorf("%s: certificate %d: %w", path, i+1, err)
		}
		if err := cmdCtx.Store.CreateCertificate(ctx, c); err != nil {
			return fmt.Errorf("%s: certificate %d: %w", path, i+1, err)
		}
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(seedOutput{File: path, Created: len(seeds.Certificates)})
	}
	if len(seeds.Certificates) == 0 {
		r.Muted("No certificates found in " + path)
		return nil
	}
	r.Success(fmt.Sprintf("Loaded %d certificates from %s", len(seeds.Certificates), path))
	return nil
}

func readSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seeds SeedFile
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return &seeds, nil
}
