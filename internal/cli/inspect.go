package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/value"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database  string
	Container string
}

// InspectSpan is one physical span of the content store.
type InspectSpan struct {
	IDs     string `json:"ids"`
	Len     int    `json:"len"`
	Status  string `json:"status"`
	Visible bool   `json:"visible"`
	Pos     int    `json:"pos"`
	Content string `json:"content"`
}

// InspectResult describes a container's span layout.
type InspectResult struct {
	Container string        `json:"container"`
	Kind      string        `json:"kind"`
	Version   string        `json:"version"`
	Frontier  []string      `json:"frontier"`
	Len       int           `json:"len"`
	Spans     []InspectSpan `json:"spans"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the span table of a container",
		Long: `Rebuild a container from the op log and print its content store in
document order: one row per span with its ids, status, visible position and
content. With --verbose the table is followed by a full structure dump.

Examples:
  weft inspect --db ./weft.db --container notes
  weft inspect --db ./weft.db --container notes -v
  weft inspect --db ./weft.db --container notes --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Container, "container", "", "container id (required)")
	_ = cmd.MarkFlagRequired("container")

	return cmd
}

func runInspect(opts *InspectOptions, cmd *cobra.Command) error {
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

	result := InspectResult{
		Container: opts.Container,
		Kind:      c.Kind().String(),
		Version:   c.Version().String(),
		Frontier:  idStrings(c.Frontier()),
		Len:       c.Len(),
		Spans:     []InspectSpan{},
	}
	for v := range c.Store().Spans() {
		result.Spans = append(result.Spans, InspectSpan{
			IDs:     v.IDs().String(),
			Len:     v.Len,
			Status:  v.Status.String(),
			Visible: v.Status.Visible(),
			Pos:     v.Pos,
			Content: render(v.Content.ToValue()),
		})
	}

	p := opts.printer(cmd)
	err = p.emit(result, nil, func(w io.Writer) {
		fmt.Fprintf(w, "Container: %s (%s), length %d, version %s\n\n", result.Container, result.Kind, result.Len, result.Version)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "IDS\tLEN\tSTATUS\tPOS\tCONTENT")
		for _, sp := range result.Spans {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", sp.IDs, sp.Len, sp.Status, sp.Pos, sp.Content)
		}
		tw.Flush()
	})
	if err != nil {
		return err
	}
	p.debugf("\n%s", litter.Options{StripPackageNames: true}.Sdump(result))
	return nil
}
