package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/certdesk/internal/state"
	"github.com/leapstack-labs/certdesk/internal/table"
)

var outputModes = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if _, err := state.LookupDialect(c.Database.Driver); err != nil {
		errs = append(errs, err)
	}
	if c.Database.DSN == "" && !c.Remote() {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.UI.Port <= 0 || c.UI.Port > 65535 {
		errs = append(errs, fmt.Errorf("ui.port out of range: %d", c.UI.Port))
	}
	if !table.ValidPageSize(c.UI.PageSize) {
		errs = append(errs, fmt.Errorf("ui.page_size: %w", table.ErrInvalidPageSize))
	}
	if c.UI.SearchDebounce < 0 {
		errs = append(errs, fmt.Errorf("ui.search_debounce must not be negative: %s", c.UI.SearchDebounce))
	}
	if c.Server.URL != "" && !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		errs = append(errs, fmt.Errorf("server.url must be an http(s) URL: %q", c.Server.URL))
	}
	if !validOutput(c.OutputFormat) {
		errs = append(errs, fmt.Errorf("output must be one of %s: %q", strings.Join(outputModes, ", "), c.OutputFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func validOutput(s string) bool {
	for _, m := range outputModes {
		if m == s {
			return true
		}
	}
	return s == ""
}
