package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Database string
}

// InitContainer is one registered container.
type InitContainer struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// InitResult holds the init result.
type InitResult struct {
	Database   string          `json:"database"`
	Containers []InitContainer `json:"containers"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an op log and register configured containers",
		Long: `Create the SQLite op log if needed and register every container named
in the config file. Containers that already exist must keep their kind.

Exit codes:
  0 - Database ready
  2 - Command error (invalid config, kind mismatch, etc.)

Examples:
  weft init --config weft.cue
  weft init --db ./weft.db --config weft.cue --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	return cmd
}

func runInit(ctx context.Context, opts *InitOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	specs, err := cfg.ContainerSpecs()
	if err != nil {
		return usageError(CodeConfig, err, "invalid container list")
	}

	path := databasePath(opts.Database, cfg)
	st, err := store.Open(path)
	if err != nil {
		return usageError(CodeDatabase, err, "failed to open database")
	}
	defer st.Close()

	sess, err := opts.startSession(ctx, st, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	result := InitResult{Database: path, Containers: make([]InitContainer, 0, len(specs))}
	var failed error
	for _, spec := range specs {
		res := sess.submit(engine.Event{
			Type:      engine.EventTypeImport,
			Container: spec.ID,
			Kind:      spec.Kind,
		})
		if res.Err != nil {
			failed = usageError(CodeConfig, res.Err, "failed to register container %s", spec.ID)
			break
		}
		result.Containers = append(result.Containers, InitContainer{ID: string(spec.ID), Kind: spec.Kind.String()})
	}
	sess.stop()
	if failed != nil {
		return failed
	}

	p := opts.printer(cmd)
	for _, c := range result.Containers {
		p.debugf("registered %s (%s)", c.ID, c.Kind)
	}
	return p.emit(result, nil, func(w io.Writer) {
		fmt.Fprintf(w, "Initialized %s with %d container(s)\n", path, len(result.Containers))
	})
}
