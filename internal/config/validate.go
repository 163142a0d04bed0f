package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

// Validation range constants.
const (
	minTimeout = 1 * time.Second
	maxTimeout = 10 * time.Minute
)

// validLogLevels are the accepted values of log_level.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// validBackends are the accepted values of store.backend.
var validBackends = []string{"file", "sqlite"}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if !slices.Contains(validLogLevels, cfg.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %v, got %q", validLogLevels, cfg.LogLevel))
	}

	errs = append(errs, validateIdentity(&cfg.Identity)...)
	errs = append(errs, validateDirectory(&cfg.Directory)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateBridge(&cfg.Bridge)...)

	return errors.Join(errs...)
}

func validateIdentity(id *IdentityConfig) []error {
	var errs []error

	errs = append(errs, validateURL("identity.token_url", id.TokenURL)...)
	errs = append(errs, validateURL("identity.authorize_url", id.AuthorizeURL)...)

	if id.ClientID == "" {
		errs = append(errs, errors.New("identity.client_id: must not be empty"))
	}

	if id.RedirectURI != "" {
		if _, err := url.Parse(id.RedirectURI); err != nil {
			errs = append(errs, fmt.Errorf("identity.redirect_uri: %w", err))
		}
	}

	return errs
}

func validateDirectory(d *DirectoryConfig) []error {
	errs := validateURL("directory.base_url", d.BaseURL)
	errs = append(errs, validateTimeout("directory.timeout", d.Timeout)...)

	return errs
}

func validateStore(s *StoreConfig) []error {
	if !slices.Contains(validBackends, s.Backend) {
		return []error{fmt.Errorf("store.backend: must be one of %v, got %q", validBackends, s.Backend)}
	}

	return nil
}

func validateBridge(b *BridgeConfig) []error {
	return validateTimeout("bridge.timeout", b.Timeout)
}

// validateURL requires an absolute http(s) URL.
func validateURL(field, raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return []error{fmt.Errorf("%s: must be an http or https URL, got %q", field, raw)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("%s: missing host in %q", field, raw)}
	}

	return nil
}

func validateTimeout(field, raw string) []error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)}
	}

	if d < minTimeout || d > maxTimeout {
		return []error{fmt.Errorf("%s: must be between %s and %s, got %s", field, minTimeout, maxTimeout, d)}
	}

	return nil
}
