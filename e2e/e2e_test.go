//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognitechbridge/ctb-session/testutil"
)

var binaryPath string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "ctb-session-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "ctb-session")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = findModuleRoot()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// findModuleRoot walks up from the current dir to find go.mod.
func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// e2e/ is one level below module root.
			return ".."
		}

		dir = parent
	}
}

func newIsolation(t *testing.T) *testutil.Isolation {
	t.Helper()

	iso, err := testutil.NewIsolation("ctb-session-e2e-iso-*")
	require.NoError(t, err)
	t.Cleanup(func() { iso.Remove() })

	return iso
}

// runCLI runs the binary inside iso with stdin as input and returns stdout,
// stderr and the exit code.
func runCLI(t *testing.T, iso *testutil.Isolation, stdin string, args ...string) (string, string, int) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = iso.Env()
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return stdout.String(), stderr.String(), 0
	case errors.As(err, &exitErr):
		return stdout.String(), stderr.String(), exitErr.ExitCode()
	default:
		t.Fatalf("running %v: %v", args, err)
		return "", "", -1
	}
}

func TestE2E_LocalCustodyRoundTrip(t *testing.T) {
	iso := newIsolation(t)

	t.Run("fresh status", func(t *testing.T) {
		stdout, stderr, code := runCLI(t, iso, "", "status", "--json")
		require.Equal(t, 0, code, stderr)

		var st map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &st))
		assert.Equal(t, "local", st["mode"])
		assert.Equal(t, true, st["first_run"])
		assert.True(t, iso.Contains(st["store"].(string)), "store path must be isolated: %v", st["store"])
	})

	t.Run("register", func(t *testing.T) {
		_, stderr, code := runCLI(t, iso, "correct horse\n", "register", "--email", "e2e@example.com")
		require.Equal(t, 0, code, stderr)
	})

	t.Run("unlock accepts the secret", func(t *testing.T) {
		_, stderr, code := runCLI(t, iso, "correct horse\n", "unlock")
		assert.Equal(t, 0, code, stderr)
	})

	t.Run("unlock rejects a wrong secret", func(t *testing.T) {
		_, _, code := runCLI(t, iso, "battery staple\n", "unlock")
		assert.Equal(t, 2, code)
	})

	t.Run("status after register", func(t *testing.T) {
		stdout, stderr, code := runCLI(t, iso, "", "status", "--json")
		require.Equal(t, 0, code, stderr)

		var st map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &st))
		assert.Equal(t, "e2e@example.com", st["email"])
		assert.Equal(t, true, st["registered"])
		assert.Equal(t, false, st["first_run"])
	})

	t.Run("logout forgets the record", func(t *testing.T) {
		_, stderr, code := runCLI(t, iso, "", "logout")
		require.Equal(t, 0, code, stderr)

		_, stderr, code = runCLI(t, iso, "correct horse\n", "unlock")
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "no user registered")
	})
}

func TestE2E_SQLiteBackend(t *testing.T) {
	iso := newIsolation(t)

	cfgPath := filepath.Join(iso.Root, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[store]\nbackend = \"sqlite\"\n"), 0o600))

	stdout, stderr, code := runCLI(t, iso, "", "--config", cfgPath, "mode", "cloud")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "cloud\n", stdout)

	stdout, stderr, code = runCLI(t, iso, "", "--config", cfgPath, "status", "--json")
	require.Equal(t, 0, code, stderr)

	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &st))
	assert.Equal(t, "cloud", st["mode"])
	assert.Equal(t, "sqlite", st["backend"])
	assert.Equal(t, true, st["needs_login"])

	store, _ := st["store"].(string)
	assert.Equal(t, "session.db", filepath.Base(store))

	_, err := os.Stat(store)
	require.NoError(t, err)
}

func TestE2E_NotSignedIn(t *testing.T) {
	iso := newIsolation(t)

	_, stderr, code := runCLI(t, iso, "", "token")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not signed in")
}
