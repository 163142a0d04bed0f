package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// Mode names as shown to users and accepted by the mode command.
const (
	modeLocal = "local"
	modeCloud = "cloud"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show custody mode, sign-in and registration state",
		Long: `Display where the wrapped root key lives (local or cloud), whether an
identity provider session exists, and whether a user is registered.

In cloud mode this may refresh the access token and query the directory.`,
		RunE: runStatus,
	}
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	Mode       string `json:"mode"`
	Email      string `json:"email,omitempty"`
	FirstRun   bool   `json:"first_run"`
	SignedIn   bool   `json:"signed_in"`
	NeedsLogin bool   `json:"needs_login"`
	Registered bool   `json:"registered"`
	Store      string `json:"store"`
	Backend    string `json:"backend"`
	Directory  string `json:"directory"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	s, cc, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()

	out := statusOutput{
		Mode:      modeLocal,
		Store:     cc.Cfg.Store.Path,
		Backend:   cc.Cfg.Store.Backend,
		Directory: cc.Cfg.Directory.BaseURL,
	}

	cloud, err := s.Custody.UseCloud(ctx)
	if err != nil {
		return err
	}

	if cloud {
		out.Mode = modeCloud
	}

	if out.FirstRun, err = s.Custody.IsFirstRun(ctx); err != nil {
		return err
	}

	if out.NeedsLogin, err = s.Custody.NeedsLoginToCloud(ctx); err != nil {
		return err
	}

	out.SignedIn = s.Broker.HasAnyAccessToken(ctx)

	// Without a session the cloud email cannot be resolved; that is the
	// needs_login state rather than an error.
	if !out.NeedsLogin {
		if out.Email, err = s.Custody.UserEmail(ctx); err != nil {
			cc.Logger.Debug("email unavailable", slog.String("error", err.Error()))
		}

		if out.Registered, err = s.Custody.IsUserRegistered(ctx); err != nil {
			cc.Logger.Debug("registration state unavailable", slog.String("error", err.Error()))
		}
	}

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), out)
	}

	printStatusText(cmd.OutOrStdout(), &out)

	return nil
}

func printStatusText(w io.Writer, out *statusOutput) {
	email := out.Email
	if email == "" {
		email = "(none)"
	}

	printTable(w, []string{"FIELD", "VALUE"}, [][]string{
		{"mode", out.Mode},
		{"email", email},
		{"signed in", yesNo(out.SignedIn)},
		{"needs login", yesNo(out.NeedsLogin)},
		{"registered", yesNo(out.Registered)},
		{"first run", yesNo(out.FirstRun)},
		{"store", fmt.Sprintf("%s (%s)", out.Store, out.Backend)},
		{"directory", out.Directory},
	})
}
