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
	"github.com/roach88/weft/internal/value"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	Container string // optional - specific container only
}

// ReplayContainerResult holds the replay result for a single container.
type ReplayContainerResult struct {
	Container     string `json:"container"`
	Kind          string `json:"kind"`
	Ops           int    `json:"ops"`
	Version       string `json:"version"`
	Content       string `json:"content"`
	Deterministic bool   `json:"deterministic"`
	Problem       string `json:"problem,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Containers       []ReplayContainerResult `json:"containers"`
	TotalContainers  int                     `json:"total_containers"`
	AllDeterministic bool                    `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the op log and verify determinism",
		Long: `Rebuild every container from the op log twice and verify both builds agree.

The first build imports the log directly, the second restores it through an
engine. Both must reach the same version, content and span layout, and pass
the container invariants.

Exit codes:
  0 - All containers are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  weft replay --db ./weft.db
  weft replay --db ./weft.db --container notes
  weft replay --db ./weft.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Container, "container", "", "replay specific container only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openExisting(databasePath(opts.Database, cfg))
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := containerIDs(ctx, st, opts.Container)
	if err != nil {
		return err
	}

	p := opts.printer(cmd)
	if len(ids) == 0 {
		empty := ReplayResult{Containers: []ReplayContainerResult{}, AllDeterministic: true}
		return p.emit(empty, nil, func(w io.Writer) {
			fmt.Fprintln(w, "No containers found in database.")
		})
	}

	// The second build goes through an engine, which restores everything.
	eng := engine.New(
		engine.WithStore(st),
		engine.WithLogger(opts.logger(cfg, cmd.ErrOrStderr())),
		engine.WithClientIDs(clientIDs(cfg)),
	)
	restoreErr := eng.Restore(ctx)

	result := ReplayResult{
		Containers:       make([]ReplayContainerResult, 0, len(ids)),
		TotalContainers:  len(ids),
		AllDeterministic: true,
	}
	for _, cid := range ids {
		res, err := replayAndVerify(ctx, st, cfg, eng, restoreErr, cid)
		if err != nil {
			return usageError(CodeDatabase, err, "failed to replay container %s", cid)
		}
		result.Containers = append(result.Containers, res)
		if !res.Deterministic {
			result.AllDeterministic = false
		}
	}

	var failure *ExitError
	if !result.AllDeterministic {
		failure = checkFailed(CodeDeterminism, "determinism verification failed")
	}
	return p.emit(result, failure, func(w io.Writer) {
		printReplay(w, result, opts.Verbose)
	})
}

// containerIDs returns the requested container, or every container in st.
func containerIDs(ctx context.Context, st *store.Store, only string) ([]value.ContainerID, error) {
	if only != "" {
		_, ok, err := st.ReadContainer(ctx, only)
		if err != nil {
			return nil, usageError(CodeDatabase, err, "failed to read containers")
		}
		if !ok {
			return nil, usageError(CodeUsage, nil, "container not found: %s", only)
		}
		return []value.ContainerID{value.ContainerID(only)}, nil
	}

	rows, err := st.ReadContainers(ctx)
	if err != nil {
		return nil, usageError(CodeDatabase, err, "failed to read containers")
	}
	ids := make([]value.ContainerID, len(rows))
	for i, row := range rows {
		ids[i] = value.ContainerID(row.ID)
	}
	return ids, nil
}

// replayAndVerify compares a direct replay with the engine's restored copy.
// A failed build is reported as non-deterministic, not as an error.
func replayAndVerify(ctx context.Context, st *store.Store, cfg config.Config, eng *engine.Engine, restoreErr error, cid value.ContainerID) (ReplayContainerResult, error) {
	records, err := st.ReadOps(ctx, string(cid))
	if err != nil {
		return ReplayContainerResult{}, err
	}
	res := ReplayContainerResult{Container: string(cid), Ops: len(records)}

	first, err := engine.Replay(ctx, st, cid, clientIDs(cfg).Next())
	if err != nil {
		res.Problem = fmt.Sprintf("first build: %v", err)
		return res, nil
	}
	res.Kind = first.Kind().String()
	res.Version = first.Version().String()
	res.Content = render(first.Value())

	if restoreErr != nil {
		res.Problem = fmt.Sprintf("second build: %v", restoreErr)
		return res, nil
	}
	second, ok := eng.Container(cid)
	if !ok {
		res.Problem = "second build: container missing after restore"
		return res, nil
	}
	res.Problem = compareBuilds(first, second)
	res.Deterministic = res.Problem == ""
	return res, nil
}

// compareBuilds describes the first difference between two builds.
func compareBuilds(a, b *sequence.Container) string {
	switch {
	case !a.Version().Equal(b.Version()):
		return fmt.Sprintf("version %s != %s", a.Version(), b.Version())
	case !value.Equal(a.Value(), b.Value()):
		return fmt.Sprintf("content %s != %s", render(a.Value()), render(b.Value()))
	case a.Store().String() != b.Store().String():
		return "span layout differs"
	}
	for _, c := range []*sequence.Container{a, b} {
		if err := c.CheckInvariants(); err != nil {
			return err.Error()
		}
	}
	return ""
}

// render formats a value as canonical JSON.
func render(v value.Value) string {
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func printReplay(w io.Writer, result ReplayResult, verbose bool) {
	fmt.Fprintf(w, "Replay Summary: %d container(s)\n\n", result.TotalContainers)
	for _, c := range result.Containers {
		mark := "✓"
		if !c.Deterministic {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s Container: %s (%s)\n", mark, c.Container, c.Kind)
		fmt.Fprintf(w, "  Ops: %d, version %s\n", c.Ops, c.Version)
		if verbose {
			fmt.Fprintf(w, "  Content: %s\n", c.Content)
		}
		if c.Problem != "" {
			fmt.Fprintf(w, "  Problem: %s\n", c.Problem)
		}
		fmt.Fprintln(w)
	}
	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All containers verified deterministic")
	} else {
		fmt.Fprintln(w, "✗ Determinism verification failed")
	}
}
