package cli

import (
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/config"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // CUE config file; defaults apply when empty
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the weft CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "weft",
		Short: "weft - sequence CRDT replica tools",
		Long:  "Edit, exchange, inspect, replay and verify the operation logs of text and list CRDT replicas.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return usageError(CodeUsage, nil, "invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "CUE config file")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewFrontierCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// loadConfig reads --config, or returns the defaults when it is unset.
func (o *RootOptions) loadConfig() (config.Config, error) {
	if o.Config == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(o.Config)
	if err != nil {
		return config.Config{}, usageError(CodeConfig, err, "failed to load config")
	}
	return cfg, nil
}

// logger builds the command logger. --verbose forces debug level.
func (o *RootOptions) logger(cfg config.Config, w io.Writer) *slog.Logger {
	level := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// clientIDs picks the configured client id, or random ids when none is set.
func clientIDs(cfg config.Config) engine.ClientIDSource {
	if c, ok := cfg.Client(); ok {
		return engine.StaticClientID(c)
	}
	return engine.RandomClientIDs{}
}

// databasePath prefers the --db flag over the config file.
func databasePath(flag string, cfg config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.Database
}

// openExisting opens an op log that must already exist.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, usageError(CodeDatabase, err, "database not found: %s", path)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, usageError(CodeDatabase, err, "failed to open database")
	}
	return st, nil
}
