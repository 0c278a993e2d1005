package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/store"
	"github.com/roach88/weft/internal/value"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database  string
	Container string
	Since     string // version vector, e.g. "{1:4}"
	Output    string
}

// ExportResult holds the export result. Batch is set when no output file
// was given.
type ExportResult struct {
	Container string          `json:"container"`
	Kind      string          `json:"kind"`
	Since     string          `json:"since"`
	Ops       int             `json:"ops"`
	Output    string          `json:"output,omitempty"`
	Batch     json.RawMessage `json:"batch,omitempty"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the ops of a container as a batch file",
		Long: `Rebuild a container from the op log and write every op not covered by
--since as a batch that weft import accepts. Ops that straddle --since are
trimmed to the part the version lacks.

Without --output the batch goes to stdout, or into the JSON envelope with
--format json.

Exit codes:
  0 - Batch written
  2 - Command error (database or container not found, bad --since, etc.)

Examples:
  weft export --db ./weft.db --container notes
  weft export --db ./weft.db --container notes --since "{1:4}" --output notes.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Container, "container", "", "container to export (required)")
	cmd.Flags().StringVar(&opts.Since, "since", "", "version already known to the receiver")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the batch to this file")
	_ = cmd.MarkFlagRequired("container")

	return cmd
}

func runExport(ctx context.Context, opts *ExportOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	since := id.NewVersionVector()
	if opts.Since != "" {
		vv, err := id.ParseVersionVector(opts.Since)
		if err != nil {
			return usageError(CodeUsage, err, "invalid --since")
		}
		since = vv
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openExisting(databasePath(opts.Database, cfg))
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := containerIDs(ctx, st, opts.Container); err != nil {
		return err
	}
	cid := value.ContainerID(opts.Container)
	c, err := engine.Replay(ctx, st, cid, clientIDs(cfg).Next())
	if err != nil {
		return usageError(CodeDatabase, err, "failed to rebuild %s", cid)
	}

	ops := c.Export(since)
	data, err := store.MarshalBatch(store.Batch{Container: string(cid), Kind: c.Kind().String(), Ops: ops})
	if err != nil {
		return usageError(CodeDatabase, err, "failed to encode batch")
	}

	result := ExportResult{
		Container: string(cid),
		Kind:      c.Kind().String(),
		Since:     since.String(),
		Ops:       len(ops),
		Output:    opts.Output,
	}
	p := opts.printer(cmd)
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return usageError(CodeUsage, err, "failed to write %s", opts.Output)
		}
		return p.emit(result, nil, func(w io.Writer) {
			fmt.Fprintf(w, "Exported %d op(s) from %s to %s\n", result.Ops, cid, opts.Output)
		})
	}

	result.Batch = bytes.TrimSpace(data)
	p.debugf("exporting %d op(s) from %s since %s", result.Ops, cid, result.Since)
	return p.emit(result, nil, func(w io.Writer) {
		w.Write(data)
	})
}
