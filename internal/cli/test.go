package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
	Golden string // golden directory; default <scenarios-dir>/../golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run convergence scenarios",
		Long: `Run convergence scenarios with the harness.

Each scenario starts one engine per replica, runs its edits and syncs, and
checks the assertions. When a golden trace exists for the scenario, the
step trace must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  weft test ./scenarios
  weft test ./scenarios --filter "concurrent-*"
  weft test ./scenarios --update
  weft test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden trace directory")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); err != nil {
		return usageError(CodeUsage, err, "scenarios directory not found: %s", dir)
	}
	golden := opts.Golden
	if golden == "" {
		golden = filepath.Join(filepath.Dir(filepath.Clean(dir)), "golden")
	}
	files, err := scenarioFiles(dir, opts.Filter)
	if err != nil {
		return usageError(CodeUsage, err, "failed to find scenarios")
	}

	p := opts.printer(cmd)
	if len(files) == 0 {
		return p.emit(TestResult{Scenarios: []ScenarioResult{}}, nil, func(w io.Writer) {
			fmt.Fprintln(w, "No scenarios found.")
		})
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, f := range files {
		res := runScenario(f, golden, opts.Update)
		p.debugf("ran %s: pass=%t", f, res.Pass)
		result.Scenarios = append(result.Scenarios, res)
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	var failure *ExitError
	if result.Failed > 0 {
		failure = checkFailed(CodeTestFailed, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return p.emit(result, failure, func(w io.Writer) { printTests(w, result) })
}

// scenarioFiles lists the YAML files directly under dir whose base name,
// without extension, matches filter. Sorted by name.
func scenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", filter, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext)); !ok {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// runScenario runs one file and compares its trace with the golden file,
// when one exists. With update the golden file is rewritten instead.
func runScenario(path, goldenDir string, update bool) ScenarioResult {
	s, err := harness.LoadScenario(path)
	if err != nil {
		return ScenarioResult{Name: filepath.Base(path), Errors: []string{err.Error()}}
	}
	run, err := harness.Run(s)
	if err != nil {
		return ScenarioResult{Name: s.Name, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}
	res := ScenarioResult{Name: s.Name, Pass: run.Pass, Errors: run.Errors}
	fail := func(format string, args ...any) ScenarioResult {
		res.Pass = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
		return res
	}

	trace, err := harness.MarshalTrace(s.Name, run.Trace)
	if err != nil {
		return fail("marshal trace: %v", err)
	}
	goldenPath := filepath.Join(goldenDir, s.Name+".golden")
	if update {
		if err := os.MkdirAll(goldenDir, 0o755); err != nil {
			return fail("update golden file: %v", err)
		}
		if err := os.WriteFile(goldenPath, trace, 0o644); err != nil {
			return fail("update golden file: %v", err)
		}
		return res
	}

	want, err := os.ReadFile(goldenPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// assertions only
	case err != nil:
		return fail("read golden file: %v", err)
	case !bytes.Equal(want, trace):
		return fail("trace does not match golden file (run with --update to regenerate)")
	}
	return res
}

func printTests(w io.Writer, result TestResult) {
	for _, r := range result.Scenarios {
		if r.Pass {
			fmt.Fprintf(w, "✓ %s\n", r.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", r.Name)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(e, "\n", "\n  "))
		}
	}
	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}
