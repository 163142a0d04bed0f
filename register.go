package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cognitechbridge/ctb-session/internal/custody"
)

// rootKeyLength is the length of a generated root key. 43 characters of the
// 62-symbol alphabet carry more than 256 bits.
const rootKeyLength = 43

// errSecretMismatch is returned by unlock when the secret is wrong. main maps
// it to exitMismatch without printing an error.
var errSecretMismatch = errors.New("secret does not match")

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Set the secret that protects the root key",
		Long: `Wrap a root key under a new secret and store the result.

Local mode (default) keeps the record in the session store under --email.
With --cloud the record is registered in the directory for the signed-in
account, together with the root key's public key, and cloud mode is enabled.

The secret is prompted for on a terminal, or read as one line from stdin.
The root key is generated unless --root-key-file names a file holding one.`,
		RunE: runRegister,
	}

	cmd.Flags().Bool("cloud", false, "register in the directory for the signed-in account")
	cmd.Flags().String("email", "", "account email for a local registration")
	cmd.Flags().String("root-key-file", "", "file containing the root key to wrap")
	cmd.MarkFlagsMutuallyExclusive("cloud", "email")

	return cmd
}

func runRegister(cmd *cobra.Command, _ []string) error {
	cloud, err := cmd.Flags().GetBool("cloud")
	if err != nil {
		return err
	}

	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return err
	}

	keyFile, err := cmd.Flags().GetString("root-key-file")
	if err != nil {
		return err
	}

	if !cloud && email == "" {
		return errors.New("local registration needs --email (or use --cloud)")
	}

	s, cc, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()

	if cloud {
		needs, err := s.Custody.NeedsLoginToCloud(ctx)
		if err != nil {
			return err
		}

		// NeedsLoginToCloud only checks the session once cloud mode is on.
		if needs || !s.Broker.HasAnyAccessToken(ctx) {
			return errNotSignedIn
		}
	}

	rootKey, err := loadRootKey(keyFile)
	if err != nil {
		return err
	}

	secret, err := readNewSecret()
	if err != nil {
		return err
	}

	if cloud {
		ok, err := s.Custody.RegisterUserCloud(ctx, secret, rootKey)
		if err != nil {
			return err
		}

		if !ok {
			return errors.New("directory rejected the registration")
		}

		if err := s.Custody.SetUseCloud(ctx, true); err != nil {
			return err
		}

		email = s.Custody.CurrentEmail()
	} else {
		if err := s.Custody.SaveUserData(ctx, email, secret, rootKey); err != nil {
			return err
		}

		if err := s.Custody.SetUseCloud(ctx, false); err != nil {
			return err
		}
	}

	mode := modeLocal
	if cloud {
		mode = modeCloud
	}

	cc.Logger.Info("registered", slog.String("mode", mode))

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), map[string]string{"email": email, "mode": mode})
	}

	cc.Statusf("Registered %s (%s).\n", email, mode)

	return nil
}

// loadRootKey reads the root key from path, or generates one when path is
// empty.
func loadRootKey(path string) (string, error) {
	if path == "" {
		return custody.RandomString(rootKeyLength)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading root key: %w", err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("root key file %s is empty", path)
	}

	return key, nil
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Check a secret against the stored root key",
		Long: `Verify that a secret unwraps the root key for the active mode.

Exits 0 when the secret matches and 2 when it does not.`,
		RunE: runUnlock,
	}
}

func runUnlock(cmd *cobra.Command, _ []string) error {
	s, cc, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	secret, err := readSecret("Secret: ")
	if err != nil {
		return err
	}

	ok, err := s.Custody.Login(cmd.Context(), secret)
	if err != nil {
		if errors.Is(err, custody.ErrNoUserData) {
			return errors.New("no user registered: run 'ctb-session register' first")
		}

		return authError(err)
	}

	if !ok {
		cc.Statusf("Secret does not match.\n")
		return errSecretMismatch
	}

	cc.Statusf("Secret accepted.\n")

	return nil
}

func newModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "mode [local|cloud]",
		Short:     "Show or set where the wrapped root key is kept",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{modeLocal, modeCloud},
		RunE:      runMode,
	}
}

func runMode(cmd *cobra.Command, args []string) error {
	s, cc, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()

	if len(args) == 1 {
		if err := s.Custody.SetUseCloud(ctx, args[0] == modeCloud); err != nil {
			return err
		}

		cc.Logger.Info("mode changed", slog.String("mode", args[0]))
	}

	cloud, err := s.Custody.UseCloud(ctx)
	if err != nil {
		return err
	}

	mode := modeLocal
	if cloud {
		mode = modeCloud
	}

	if cc.Flags.JSON {
		return printJSON(cmd.OutOrStdout(), map[string]string{"mode": mode})
	}

	fmt.Fprintln(cmd.OutOrStdout(), mode)

	return nil
}
