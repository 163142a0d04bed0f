package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve users in the directory",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "email <public-key>",
		Short: "Find the account email that owns a public key",
		Args:  cobra.ExactArgs(1),
		RunE:  runLookupEmail,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pubkey <email>",
		Short: "Find the public key registered for an email",
		Args:  cobra.ExactArgs(1),
		RunE:  runLookupPubKey,
	})

	return cmd
}

// lookupOutput is the JSON schema for `lookup --json`.
type lookupOutput struct {
	Email     string `json:"email"`
	PublicKey string `json:"public_key"`
}

func runLookupEmail(cmd *cobra.Command, args []string) error {
	s, cc, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	email := s.Custody.EmailFromPublicKey(cmd.Context(), args[0])
	if email == "" {
		return fmt.Errorf("no account found for public key %q", args[0])
	}

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), lookupOutput{Email: email, PublicKey: args[0]})
	}

	fmt.Fprintln(cmd.OutOrStdout(), email)

	return nil
}

func runLookupPubKey(cmd *cobra.Command, args []string) error {
	s, cc, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	pub := s.Custody.PublicKeyForEmail(cmd.Context(), args[0])
	if pub == "" {
		return fmt.Errorf("no public key registered for %q", args[0])
	}

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), lookupOutput{Email: args[0], PublicKey: pub})
	}

	fmt.Fprintln(cmd.OutOrStdout(), pub)

	return nil
}
