package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cognitechbridge/ctb-session/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes. A wrong secret is an expected outcome, not an error.
const (
	exitError    = 1
	exitMismatch = 2
)

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagStorePath  string
	flagAPIURL     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags is the parsed form of the persistent flags.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries everything a subcommand needs after the root pre-run
// phase: flags, the resolved configuration and a logger built from both.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
}

type cliContextKey struct{}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// cliContextFrom returns the CLIContext stored by the root pre-run, or nil.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext is cliContextFrom for commands that always run after
// PersistentPreRunE. A nil result is a wiring bug.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not initialized; PersistentPreRunE did not run")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ctb-session",
		Short:   "CogniTechBridge session and credential custody",
		Long:    "Sign in to CogniTechBridge, hold the refresh token, and manage the wrapped root key locally or in the cloud.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagStorePath, "store", "", "session store path")
	cmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "directory API base URL")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newUnlockCmd())
	cmd.AddCommand(newModeCmd())
	cmd.AddCommand(newLookupCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer override
// chain and stores a CLIContext in the command's context for subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	// Only pass flags the user explicitly set, so env values still apply.
	if cmd.Flags().Changed("store") {
		cli.StorePath = &flagStorePath
	}

	if cmd.Flags().Changed("api-url") {
		cli.APIURL = &flagAPIURL
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := CLIFlags{
		ConfigPath: flagConfigPath,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}

	cc := &CLIContext{
		Flags:  flags,
		Cfg:    resolved,
		Logger: buildLogger(cmd.ErrOrStderr(), resolved, flags),
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. Records go to w.
func buildLogger(w io.Writer, cfg *config.Resolved, flags CLIFlags) *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitError)
}
