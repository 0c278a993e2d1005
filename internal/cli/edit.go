package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/config"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/sequence"
	"github.com/roach88/weft/internal/store"
	"github.com/roach88/weft/internal/tracker"
	"github.com/roach88/weft/internal/value"
)

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	Database  string
	Container string
	Kind      string // only needed when the container is new
	Pos       int
	Insert    string
	Values    string // JSON array
	Delete    int
}

// EditResult holds the result of one local edit.
type EditResult struct {
	Container string   `json:"container"`
	Kind      string   `json:"kind"`
	Op        string   `json:"op"`
	Effects   []string `json:"effects"`
	Version   string   `json:"version"`
	Content   string   `json:"content"`
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Apply a local edit to a container and append it to the op log",
		Long: `Apply one local edit at a visible position and append the resulting op
to the log. Exactly one of --insert, --values or --delete is required.

A container that is not in the log yet is created with --kind, or with the
kind the config file gives it.

Exit codes:
  0 - Edit applied and written
  2 - Command error (database not found, position out of range, etc.)

Examples:
  weft edit --db ./weft.db --container notes --insert "hello"
  weft edit --db ./weft.db --container notes --delete 2 --pos 1
  weft edit --db ./weft.db --container todo --kind list --values '[1,"a"]'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Container, "container", "", "container to edit (required)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "kind of a new container (text|list)")
	cmd.Flags().IntVar(&opts.Pos, "pos", 0, "visible position of the edit")
	cmd.Flags().StringVar(&opts.Insert, "insert", "", "text to insert")
	cmd.Flags().StringVar(&opts.Values, "values", "", "JSON array of values to insert")
	cmd.Flags().IntVar(&opts.Delete, "delete", 0, "number of elements to delete")
	_ = cmd.MarkFlagRequired("container")
	cmd.MarkFlagsOneRequired("insert", "values", "delete")
	cmd.MarkFlagsMutuallyExclusive("insert", "values", "delete")

	return cmd
}

func runEdit(ctx context.Context, opts *EditOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	edit, err := opts.edit(cmd)
	if err != nil {
		return err
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

	cid := value.ContainerID(opts.Container)
	kind, err := containerKind(ctx, st, cfg, cid, opts.Kind)
	if err != nil {
		return err
	}

	sess, err := opts.startSession(ctx, st, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	res := sess.submit(engine.Event{
		Type:      engine.EventTypeLocal,
		Container: cid,
		Kind:      kind,
		Edit:      &edit,
	})
	sess.stop()
	if res.Err != nil {
		return usageError(CodeRejected, res.Err, "edit rejected by %s", cid)
	}

	c, _ := sess.eng.Container(cid)
	result := EditResult{
		Container: string(cid),
		Kind:      c.Kind().String(),
		Op:        res.Ops[0].Span().String(),
		Effects:   effectStrings(res.Effects),
		Version:   c.Version().String(),
		Content:   render(c.Value()),
	}
	p := opts.printer(cmd)
	p.debugf("client %d wrote %s", c.Client(), result.Op)
	return p.emit(result, nil, func(w io.Writer) {
		fmt.Fprintf(w, "Applied %s to %s, version %s\n", result.Op, result.Container, result.Version)
		for _, e := range result.Effects {
			fmt.Fprintf(w, "  %s\n", e)
		}
		fmt.Fprintf(w, "Content: %s\n", result.Content)
	})
}

// edit builds the engine edit from whichever edit flag was given.
func (o *EditOptions) edit(cmd *cobra.Command) (engine.Edit, error) {
	flags := cmd.Flags()
	switch {
	case flags.Changed("insert"):
		return engine.Edit{Kind: engine.EditInsertText, Pos: o.Pos, Text: o.Insert}, nil
	case flags.Changed("values"):
		v, err := value.UnmarshalCanonical([]byte(o.Values))
		if err != nil {
			return engine.Edit{}, usageError(CodeUsage, err, "invalid --values")
		}
		list, ok := v.(value.List)
		if !ok {
			return engine.Edit{}, usageError(CodeUsage, nil, "--values must be a JSON array, got %s", v.Kind())
		}
		return engine.Edit{Kind: engine.EditInsertValues, Pos: o.Pos, Values: list.Items()}, nil
	}
	return engine.Edit{Kind: engine.EditDelete, Pos: o.Pos, Len: o.Delete}, nil
}

// containerKind resolves the kind for an event on cid. A container already
// in the log keeps its kind unless flag names a different one; a new one
// takes flag, then the config file.
func containerKind(ctx context.Context, st *store.Store, cfg config.Config, cid value.ContainerID, flag string) (sequence.Kind, error) {
	if flag != "" {
		k, err := sequence.ParseKind(flag)
		if err != nil {
			return 0, usageError(CodeUsage, err, "invalid --kind")
		}
		return k, nil
	}
	row, ok, err := st.ReadContainer(ctx, string(cid))
	if err != nil {
		return 0, usageError(CodeDatabase, err, "failed to read containers")
	}
	if ok {
		k, err := sequence.ParseKind(row.Kind)
		if err != nil {
			return 0, usageError(CodeDatabase, err, "container %s", cid)
		}
		return k, nil
	}
	if kind, ok := cfg.Containers[string(cid)]; ok {
		k, err := sequence.ParseKind(kind)
		if err != nil {
			return 0, usageError(CodeConfig, err, "container %s", cid)
		}
		return k, nil
	}
	return 0, usageError(CodeUsage, nil, "container %s is not in the log; pass --kind", cid)
}

func effectStrings(effects []tracker.Effect) []string {
	out := make([]string, len(effects))
	for i, e := range effects {
		out[i] = e.String()
	}
	return out
}
