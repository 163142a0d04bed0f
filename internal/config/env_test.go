package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvStore, "/custom/session.json")
	t.Setenv(EnvAPIURL, "http://localhost:1323")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "/custom/session.json", overrides.StorePath)
	assert.Equal(t, "http://localhost:1323", overrides.APIURL)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvStore, "")
	t.Setenv(EnvAPIURL, "")

	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "CTB_SESSION_CONFIG", EnvConfig)
	assert.Equal(t, "CTB_SESSION_STORE", EnvStore)
	assert.Equal(t, "CTB_SESSION_API_URL", EnvAPIURL)
}
