package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultLogLevel         = "info"
	defaultTokenURL         = "https://dev-65toamv7157f23vq.us.auth0.com/oauth/token"
	defaultAuthorizeURL     = "https://dev-65toamv7157f23vq.us.auth0.com/authorize"
	defaultClientID         = "ZBRZXrV3FrzvZfO3Zz8OCnKEwXnyxrDf"
	defaultAPIBaseURL       = "https://api.cognitechbridge.com"
	defaultDirectoryTimeout = "30s"
	defaultStoreBackend     = "file"
	defaultBridgeTimeout    = "30s"
)

// defaultScopes request an ID token with the email claim and a refresh token.
var defaultScopes = []string{"openid", "profile", "email", "offline_access"}

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: defaultLogLevel,
		Identity: IdentityConfig{
			TokenURL:     defaultTokenURL,
			AuthorizeURL: defaultAuthorizeURL,
			ClientID:     defaultClientID,
			RedirectURI:  defaultAPIBaseURL + "/callback",
			Scopes:       append([]string(nil), defaultScopes...),
		},
		Directory: DirectoryConfig{
			BaseURL: defaultAPIBaseURL,
			Timeout: defaultDirectoryTimeout,
		},
		Store: StoreConfig{
			Backend: defaultStoreBackend,
		},
		Bridge: BridgeConfig{
			Timeout: defaultBridgeTimeout,
		},
	}
}
