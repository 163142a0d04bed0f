// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for ctb-session. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	LogLevel  string          `toml:"log_level"`
	Identity  IdentityConfig  `toml:"identity"`
	Directory DirectoryConfig `toml:"directory"`
	Store     StoreConfig     `toml:"store"`
	Bridge    BridgeConfig    `toml:"bridge"`
}

// IdentityConfig describes the OAuth2 identity provider. The client is public:
// no secret is configured, and every login uses PKCE.
type IdentityConfig struct {
	TokenURL     string   `toml:"token_url"`
	AuthorizeURL string   `toml:"authorize_url"`
	ClientID     string   `toml:"client_id"`
	RedirectURI  string   `toml:"redirect_uri"`
	Audience     string   `toml:"audience"`
	Scopes       []string `toml:"scopes"`
}

// DirectoryConfig locates the remote user directory API.
type DirectoryConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// StoreConfig selects the persisted session store. An empty path resolves to
// a backend-specific file in the data directory.
type StoreConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// BridgeConfig locates the native collaborator binary. An empty cli_path
// selects the in-process key wrapper.
type BridgeConfig struct {
	CLIPath string `toml:"cli_path"`
	Timeout string `toml:"timeout"`
}

// DirectoryTimeout returns the parsed directory timeout. Validate guarantees
// it parses.
func (c *Config) DirectoryTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Directory.Timeout)
	return d
}

// BridgeTimeout returns the parsed collaborator timeout.
func (c *Config) BridgeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Bridge.Timeout)
	return d
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	StorePath  *string // --store flag
	APIURL     *string // --api-url flag
}

// Resolved is a fully merged and validated configuration.
type Resolved struct {
	Config

	// ConfigPath is the file the configuration was read from, whether or
	// not it exists.
	ConfigPath string
}
