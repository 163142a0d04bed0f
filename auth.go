package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser (authorization code + PKCE)",
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local custody record",
		Long: `Sign out of the identity provider (cloud mode) and remove the local
custody record. Entries registered in the directory are not touched.`,
		RunE: runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in account",
		RunE:  runWhoami,
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, refreshing it if needed",
		RunE:  runToken,
	}

	cmd.Flags().Bool("id", false, "print the ID token instead of the access token")

	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	s, cc, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
	defer stop()

	cc.Logger.Info("login started")

	if _, err := s.Broker.LoginWithBrowser(ctx, openBrowser); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	email := s.Custody.CurrentEmail()
	cc.Logger.Info("login successful", slog.String("email", email))

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), map[string]string{"email": email})
	}

	if email == "" {
		cc.Statusf("Login successful.\n")
	} else {
		cc.Statusf("Signed in as %s.\n", email)
	}

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	s, cc, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Custody.Logout(cmd.Context()); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Email     string `json:"email"`
	PublicKey string `json:"public_key,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	s, cc, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()

	email := s.Broker.Email(ctx)
	if email == "" {
		return errNotSignedIn
	}

	out := whoamiOutput{
		Email:     email,
		PublicKey: s.Custody.PublicKeyForEmail(ctx, email),
	}

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Email:      %s\n", out.Email)

	if out.PublicKey != "" {
		fmt.Fprintf(w, "Public key: %s\n", out.PublicKey)
	} else {
		fmt.Fprintln(w, "Public key: (not registered)")
	}

	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	s, _, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	wantID, err := cmd.Flags().GetBool("id")
	if err != nil {
		return err
	}

	var tok string
	if wantID {
		tok, err = s.Broker.IDToken(cmd.Context())
	} else {
		tok, err = s.Broker.Token(cmd.Context())
	}

	if err != nil {
		return authError(err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), tok)

	return nil
}
