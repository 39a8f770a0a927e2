package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"sismed/internal/facade"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// globalOptions are the flags shared by every subcommand
type globalOptions struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string
}

func (o *globalOptions) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "config file (default: search $SISMED_CONFIG, ./sismed.yaml, ~/.config/sismed)")
	fs.StringVar(&o.dbPath, "db", "", "SQLite database path (overrides database.path)")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	fs.StringVar(&o.logFormat, "log-format", "", "log format: json or console")
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", facade.Message(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "sismed",
		Short:         "SISMED clinical records manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.bind(root.PersistentFlags())

	root.AddCommand(
		serveCmd(opts),
		initCmd(opts),
		backupCmd(opts),
		restoreCmd(opts),
		catalogCmd(opts),
		invokeCmd(opts),
		shellCmd(opts),
		versionCmd(),
	)
	return root
}

// newLogger builds the process logger. The console format is for humans at
// a terminal; json is the default for services.
func newLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sismed %s\n", version)
		},
	}
}
