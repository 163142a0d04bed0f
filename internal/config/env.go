package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "CTB_SESSION_CONFIG"
	EnvStore  = "CTB_SESSION_STORE"
	EnvAPIURL = "CTB_SESSION_API_URL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // CTB_SESSION_CONFIG: override config file path
	StorePath  string // CTB_SESSION_STORE: session store path
	APIURL     string // CTB_SESSION_API_URL: directory base URL
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		StorePath:  os.Getenv(EnvStore),
		APIURL:     os.Getenv(EnvAPIURL),
	}
}
