// Package testutil provides shared environment helpers for E2E tests. It
// depends only on stdlib so that E2E tests (which cannot import internal/)
// can use it.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// appEnvPrefix marks variables that would point the binary at real state.
const appEnvPrefix = "CTB_SESSION_"

// Isolation is a throwaway HOME plus XDG config and data directories.
type Isolation struct {
	Root       string
	Home       string
	ConfigHome string
	DataHome   string
}

// NewIsolation creates the directories under a fresh temp root.
func NewIsolation(pattern string) (*Isolation, error) {
	root, err := os.MkdirTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("creating isolation root: %w", err)
	}

	iso := &Isolation{
		Root:       root,
		Home:       filepath.Join(root, "home"),
		ConfigHome: filepath.Join(root, "config"),
		DataHome:   filepath.Join(root, "data"),
	}

	for _, d := range []string{iso.Home, iso.ConfigHome, iso.DataHome} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("creating %s: %w", d, err)
		}
	}

	return iso, nil
}

// Env returns the current environment with HOME and the XDG directories
// redirected into the isolation root and every CTB_SESSION_* variable
// removed, followed by extra.
func (iso *Isolation) Env(extra ...string) []string {
	var env []string

	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")

		switch {
		case strings.HasPrefix(key, appEnvPrefix):
		case key == "HOME", key == "XDG_CONFIG_HOME", key == "XDG_DATA_HOME":
		default:
			env = append(env, kv)
		}
	}

	env = append(env,
		"HOME="+iso.Home,
		"XDG_CONFIG_HOME="+iso.ConfigHome,
		"XDG_DATA_HOME="+iso.DataHome,
	)

	return append(env, extra...)
}

// Contains reports whether path lies inside the isolation root.
func (iso *Isolation) Contains(path string) bool {
	rel, err := filepath.Rel(iso.Root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Remove deletes the isolation root.
func (iso *Isolation) Remove() error {
	return os.RemoveAll(iso.Root)
}
