package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)
	ew.printf("log_level = %q\n\n", r.LogLevel)

	ew.printf("[identity]\n")
	ew.printf("  token_url     = %q\n", r.Identity.TokenURL)
	ew.printf("  authorize_url = %q\n", r.Identity.AuthorizeURL)
	ew.printf("  client_id     = %q\n", r.Identity.ClientID)
	ew.printf("  redirect_uri  = %q\n", r.Identity.RedirectURI)

	if r.Identity.Audience != "" {
		ew.printf("  audience      = %q\n", r.Identity.Audience)
	}

	ew.printf("  scopes        = [%s]\n\n", joinQuoted(r.Identity.Scopes))

	ew.printf("[directory]\n")
	ew.printf("  base_url = %q\n", r.Directory.BaseURL)
	ew.printf("  timeout  = %q\n\n", r.Directory.Timeout)

	ew.printf("[store]\n")
	ew.printf("  backend = %q\n", r.Store.Backend)
	ew.printf("  path    = %q\n\n", r.Store.Path)

	ew.printf("[bridge]\n")

	if r.Bridge.CLIPath != "" {
		ew.printf("  cli_path = %q\n", r.Bridge.CLIPath)
	} else {
		ew.printf("  # cli_path unset: keys are wrapped in-process\n")
	}

	ew.printf("  timeout  = %q\n", r.Bridge.Timeout)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
