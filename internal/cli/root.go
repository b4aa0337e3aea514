// Package cli wires configuration, logging and tracing into the piiscan
// cobra commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gonkalabs/piiscan/internal/config"
	potel "github.com/gonkalabs/piiscan/internal/otel"
)

const serviceName = "piiscan"

// Version info injected via ldflags at build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var tracer = potel.Tracer("github.com/gonkalabs/piiscan/internal/cli")

// resolvedVersion returns Version unless it is "dev" and the build info
// carries a real module version (go install ...@vX.Y.Z).
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// app carries state shared by the subcommands of one invocation.
type app struct {
	cfgFile   string
	logLevel  string
	logFormat string
	otelFlag  bool

	cfg          *config.Cfg
	otelShutdown func(context.Context) error
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:   "piiscan",
		Short: "PII detection and redaction service",
		Long: `piiscan finds personally identifiable information in free-form text
(emails, phone numbers, names, SSNs, payment cards, street addresses) and
replaces it with block characters before the text goes anywhere else.

Run "piiscan serve" for the HTTP API or "piiscan scan" to redact a file.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd.ErrOrStderr(), a.logLevel, a.logFormat)

			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg

			// Spans go to stderr so scan output stays pipeable.
			shutdown, err := potel.Setup(serviceName, resolvedVersion(), a.otelFlag || cfg.OTelEnabled, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("initializing OpenTelemetry: %w", err)
			}
			a.otelShutdown = shutdown
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML config file (PIISCAN_* environment variables take precedence)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "console", "log format (console, json)")
	root.PersistentFlags().BoolVar(&a.otelFlag, "otel", false, "export traces to stderr")

	root.AddCommand(newServeCmd(a), newScanCmd(a), newVersionCmd())
	return root, a
}

func setupLogging(w io.Writer, level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
}

// Execute runs the root command and flushes traces on exit.
func Execute() error {
	root, a := newRootCmd()
	err := root.Execute()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.otelShutdown(ctx)
	}
	return err
}

// Main is the process entry point.
func Main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
