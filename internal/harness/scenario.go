package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/weft/internal/sequence"
)

// Scenario defines a convergence test scenario: replicas perform edits,
// exchange ops in chosen orders and are then checked by assertions.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Container is the container id every replica edits. Default "doc".
	Container string `yaml:"container,omitempty"`

	// Kind is "text" or "list".
	Kind string `yaml:"kind"`

	// Replicas lists the client id of each replica.
	Replicas []uint64 `yaml:"replicas"`

	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one edit or one delivery. Exactly one of Insert, Delete and Sync
// is set. Insert and Delete run on Replica.
type Step struct {
	Replica uint64      `yaml:"replica,omitempty"`
	Insert  *InsertStep `yaml:"insert,omitempty"`
	Delete  *DeleteStep `yaml:"delete,omitempty"`
	Sync    *SyncStep   `yaml:"sync,omitempty"`

	// ExpectError is the error code the step must fail with, e.g.
	// "OUT_OF_RANGE". Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// InsertStep inserts Text into a text container or Values into a list.
type InsertStep struct {
	Pos    int    `yaml:"pos"`
	Text   string `yaml:"text,omitempty"`
	Values []any  `yaml:"values,omitempty"`
}

type DeleteStep struct {
	Pos int `yaml:"pos"`
	Len int `yaml:"len"`
}

// SyncStep delivers to To everything From has that To lacks.
type SyncStep struct {
	From  uint64 `yaml:"from"`
	To    uint64 `yaml:"to"`
	Order string `yaml:"order,omitempty"`
	Seed  uint64 `yaml:"seed,omitempty"`
}

// Delivery orders.
const (
	OrderCausal  = "causal"
	OrderShuffle = "shuffle"
	OrderReverse = "reverse"
)

// Assertion validates the state after all steps.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Replica selects the replica (content, version, critical_version,
	// pending, replay).
	Replica uint64 `yaml:"replica,omitempty"`

	// Text is the expected text (content on text containers).
	Text *string `yaml:"text,omitempty"`

	// Values are the expected elements (content on list containers).
	Values []any `yaml:"values,omitempty"`

	// Version is the expected version vector (version).
	Version string `yaml:"version,omitempty"`

	// Critical lists the expected critical ids as counter@client
	// (critical_version).
	Critical []string `yaml:"critical,omitempty"`

	// Count is the expected number of pending ops (pending).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged  = "converged"
	AssertContent    = "content"
	AssertVersion    = "version"
	AssertCritical   = "critical_version"
	AssertPending    = "pending"
	AssertReplay     = "replay"
	AssertInvariants = "invariants"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Container == "" {
		scenario.Container = "doc"
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && (strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	kind, err := sequence.ParseKind(s.Kind)
	if err != nil {
		return err
	}
	if len(s.Replicas) == 0 {
		return fmt.Errorf("replicas list is required and must be non-empty")
	}
	for i, c := range s.Replicas {
		if c == 0 {
			return fmt.Errorf("replicas[%d]: client id must be positive", i)
		}
		if slices.Index(s.Replicas, c) != i {
			return fmt.Errorf("replicas[%d]: duplicate client id %d", i, c)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if err := validateStep(s, kind, step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(s, kind, a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s *Scenario, kind sequence.Kind, step Step) error {
	set := 0
	for _, present := range []bool{step.Insert != nil, step.Delete != nil, step.Sync != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of insert, delete or sync is required")
	}

	switch {
	case step.Insert != nil:
		if !slices.Contains(s.Replicas, step.Replica) {
			return fmt.Errorf("unknown replica %d", step.Replica)
		}
		if kind == sequence.Text && step.Insert.Values != nil {
			return fmt.Errorf("insert: values on a text container")
		}
		if kind == sequence.List && step.Insert.Text != "" {
			return fmt.Errorf("insert: text on a list container")
		}
	case step.Delete != nil:
		if !slices.Contains(s.Replicas, step.Replica) {
			return fmt.Errorf("unknown replica %d", step.Replica)
		}
	case step.Sync != nil:
		if step.Replica != 0 {
			return fmt.Errorf("sync: use from/to, not replica")
		}
		if !slices.Contains(s.Replicas, step.Sync.From) || !slices.Contains(s.Replicas, step.Sync.To) {
			return fmt.Errorf("sync: unknown replica in %d -> %d", step.Sync.From, step.Sync.To)
		}
		if step.Sync.From == step.Sync.To {
			return fmt.Errorf("sync: from and to are the same replica")
		}
		switch step.Sync.Order {
		case "", OrderCausal, OrderShuffle, OrderReverse:
		default:
			return fmt.Errorf("sync: unknown order %q", step.Sync.Order)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(s *Scenario, kind sequence.Kind, a Assertion) error {
	needsReplica := func() error {
		if !slices.Contains(s.Replicas, a.Replica) {
			return fmt.Errorf("%s: unknown replica %d", a.Type, a.Replica)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertConverged, AssertInvariants:
		return nil
	case AssertContent:
		if kind == sequence.Text && a.Text == nil {
			return fmt.Errorf("content: text is required for text containers")
		}
		if kind == sequence.List && a.Values == nil {
			return fmt.Errorf("content: values is required for list containers")
		}
		return needsReplica()
	case AssertVersion:
		if a.Version == "" {
			return fmt.Errorf("version: version is required")
		}
		return needsReplica()
	case AssertCritical, AssertPending, AssertReplay:
		return needsReplica()
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}
