package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/frontier"
	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/value"
)

// FrontierOptions holds flags for the frontier command.
type FrontierOptions struct {
	*RootOptions
	Database  string
	Container string
	Ends      []string // version vectors, e.g. "{1:3, 2:1}"
}

// FrontierResult holds the BFS and DFS results side by side.
type FrontierResult struct {
	Container string   `json:"container"`
	Ends      []string `json:"ends"`
	Critical  []string `json:"critical"`
	Version   string   `json:"version"`
	DFS       []string `json:"dfs_critical"`
	Agree     bool     `json:"agree"`
}

// NewFrontierCommand creates the frontier command.
func NewFrontierCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FrontierOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "frontier",
		Short: "Compute the critical version of a container",
		Long: `Compute the critical version of a container's history below the given
end versions, or below its current version when no --end is given.

The computation runs breadth-first and depth-first; both must agree.

Exit codes:
  0 - Both strategies agree
  1 - The strategies disagree
  2 - Command error (unknown container, end version outside the history, etc.)

Examples:
  weft frontier --db ./weft.db --container notes
  weft frontier --db ./weft.db --container notes --end "{1:3}" --end "{1:2, 2:1}"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFrontier(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Container, "container", "", "container id (required)")
	_ = cmd.MarkFlagRequired("container")
	cmd.Flags().StringArrayVar(&opts.Ends, "end", nil, "end version vector (repeatable)")

	return cmd
}

func runFrontier(opts *FrontierOptions, cmd *cobra.Command) error {
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

	if _, err := containerIDs(ctx, st, opts.Container); err != nil {
		return err
	}
	c, err := engine.Replay(ctx, st, value.ContainerID(opts.Container), clientIDs(cfg).Next())
	if err != nil {
		return usageError(CodeDatabase, err, "failed to replay container")
	}

	ends := make([]id.VersionVector, 0, len(opts.Ends))
	for _, s := range opts.Ends {
		vv, err := id.ParseVersionVector(s)
		if err != nil {
			return usageError(CodeUsage, err, "invalid --end")
		}
		ends = append(ends, vv)
	}
	if len(ends) == 0 {
		ends = append(ends, c.Version())
	}

	bfs, err := frontier.CriticalVersion(c.Graph(), ends...)
	if err != nil {
		return usageError(CodeUsage, err, "critical version")
	}
	dfs, err := frontier.CriticalVersionDFS(c.Graph(), ends...)
	if err != nil {
		return usageError(CodeUsage, err, "critical version (dfs)")
	}

	result := FrontierResult{
		Container: opts.Container,
		Ends:      make([]string, len(ends)),
		Critical:  idStrings(bfs.Critical),
		Version:   bfs.Version.String(),
		DFS:       idStrings(dfs.Critical),
		Agree:     bfs.Equal(dfs),
	}
	for i, vv := range ends {
		result.Ends[i] = vv.String()
	}

	var failure *ExitError
	if !result.Agree {
		failure = checkFailed(CodeDisagreement, "BFS and DFS critical versions differ")
	}
	return opts.printer(cmd).emit(result, failure, func(w io.Writer) {
		fmt.Fprintf(w, "Container: %s\n", result.Container)
		fmt.Fprintf(w, "Ends: %s\n", strings.Join(result.Ends, " "))
		fmt.Fprintf(w, "Critical: [%s]\n", strings.Join(result.Critical, " "))
		fmt.Fprintf(w, "Version: %s\n", result.Version)
		if opts.Verbose || !result.Agree {
			fmt.Fprintf(w, "DFS critical: [%s]\n", strings.Join(result.DFS, " "))
		}
	})
}

func idStrings(ids []id.ID) []string {
	out := make([]string, len(ids))
	for i, x := range ids {
		out[i] = x.String()
	}
	return out
}
