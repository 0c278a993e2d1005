package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/store"
	"github.com/roach88/weft/internal/value"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database  string
	Container string // overrides the batch's container
	Kind      string
}

// ImportResult holds the result of importing one batch.
type ImportResult struct {
	Container  string   `json:"container"`
	Kind       string   `json:"kind"`
	Received   int      `json:"received"`
	Integrated int      `json:"integrated"`
	Pending    int      `json:"pending"`
	Effects    []string `json:"effects"`
	Version    string   `json:"version"`
	Content    string   `json:"content"`
	Problem    string   `json:"problem,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <batch.json>",
		Short: "Integrate remote ops from a batch file into the op log",
		Long: `Integrate the ops of a batch file, as written by weft export, and append
the integrated ops to the log. Use - to read the batch from stdin.

Ops already in the log are skipped. Ops whose dependencies are missing stay
pending and are not written; import the batch that carries them first.

Exit codes:
  0 - Every op integrated or already known
  1 - Some ops were rejected or left pending
  2 - Command error (database not found, unreadable batch, etc.)

Examples:
  weft export --db ./a.db --container notes --output notes.json
  weft import --db ./b.db notes.json
  weft export --db ./a.db --container notes | weft import --db ./b.db -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Container, "container", "", "import into this container instead of the batch's")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "kind of a new container (default from the batch)")

	return cmd
}

func runImport(ctx context.Context, opts *ImportOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	batch, err := readBatch(path, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if opts.Container != "" {
		batch.Container = opts.Container
	}
	if batch.Container == "" {
		return usageError(CodeUsage, nil, "batch names no container; pass --container")
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

	cid := value.ContainerID(batch.Container)
	flag := opts.Kind
	if flag == "" {
		flag = batch.Kind
	}
	kind, err := containerKind(ctx, st, cfg, cid, flag)
	if err != nil {
		return err
	}

	sess, err := opts.startSession(ctx, st, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	res := sess.submit(engine.Event{
		Type:      engine.EventTypeImport,
		Container: cid,
		Kind:      kind,
		Ops:       batch.Ops,
	})
	sess.stop()

	c, ok := sess.eng.Container(cid)
	if !ok {
		return usageError(CodeRejected, res.Err, "import into %s failed", cid)
	}
	result := ImportResult{
		Container:  string(cid),
		Kind:       c.Kind().String(),
		Received:   len(batch.Ops),
		Integrated: len(res.Ops),
		Pending:    res.Pending,
		Effects:    effectStrings(res.Effects),
		Version:    c.Version().String(),
		Content:    render(c.Value()),
	}

	var failure *ExitError
	switch {
	case res.Err != nil:
		result.Problem = res.Err.Error()
		failure = checkFailed(CodeRejected, fmt.Sprintf("import into %s rejected ops", cid))
	case res.Pending > 0:
		result.Problem = fmt.Sprintf("%d op(s) wait for missing dependencies", res.Pending)
		failure = checkFailed(CodePending, result.Problem)
	}

	p := opts.printer(cmd)
	return p.emit(result, failure, func(w io.Writer) {
		fmt.Fprintf(w, "Imported %d of %d op(s) into %s, version %s\n",
			result.Integrated, result.Received, result.Container, result.Version)
		if opts.Verbose {
			for _, e := range result.Effects {
				fmt.Fprintf(w, "  %s\n", e)
			}
			fmt.Fprintf(w, "Content: %s\n", result.Content)
		}
		if result.Problem != "" {
			fmt.Fprintf(w, "Problem: %s\n", result.Problem)
		}
	})
}

func readBatch(path string, stdin io.Reader) (store.Batch, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return store.Batch{}, usageError(CodeUsage, err, "failed to read batch %s", path)
	}
	batch, err := store.UnmarshalBatch(data)
	if err != nil {
		return store.Batch{}, usageError(CodeUsage, err, "invalid batch %s", path)
	}
	return batch, nil
}
