package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"token url scheme", func(c *Config) { c.Identity.TokenURL = "ftp://x/token" }, "identity.token_url"},
		{"authorize url host", func(c *Config) { c.Identity.AuthorizeURL = "https://" }, "identity.authorize_url"},
		{"client id", func(c *Config) { c.Identity.ClientID = "" }, "identity.client_id"},
		{"base url", func(c *Config) { c.Directory.BaseURL = "api.example.com" }, "directory.base_url"},
		{"directory timeout", func(c *Config) { c.Directory.Timeout = "soon" }, "directory.timeout"},
		{"directory timeout range", func(c *Config) { c.Directory.Timeout = "1h" }, "directory.timeout"},
		{"backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"bridge timeout", func(c *Config) { c.Bridge.Timeout = "10ms" }, "bridge.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	cfg.Store.Backend = "redis"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "store.backend")
}
