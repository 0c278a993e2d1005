// Package config loads replica configuration from CUE files.
//
// A file is unified with the embedded #Config schema, so defaults are
// filled in, unknown fields are rejected and every value must be concrete:
//
//	database:  "doc.db"
//	log_level: "debug"
//	client_id: 7
//	containers: {
//		notes: "text"
//		todo:  "list"
//	}
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/weft/internal/id"
	"github.com/roach88/weft/internal/sequence"
	"github.com/roach88/weft/internal/value"
)

//go:embed schema.cue
var schemaCUE string

const schemaFile = "schema.cue"

// Error codes for LoadError.
const (
	ErrCodeRead    = "CONFIG_READ"
	ErrCodeSyntax  = "CONFIG_SYNTAX"
	ErrCodeInvalid = "CONFIG_INVALID"
)

// Config is a decoded replica configuration.
type Config struct {
	Database   string            `json:"database"`
	LogLevel   string            `json:"log_level"`
	ClientID   uint64            `json:"client_id"`
	Containers map[string]string `json:"containers"`
}

// LoadError is a configuration error with the CUE position, if known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads and validates the CUE file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &LoadError{Code: ErrCodeRead, Message: err.Error()}
	}
	return Parse(path, data)
}

// Parse validates CUE source. filename is used in error positions.
func Parse(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()
	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Config{}, loadError(ErrCodeSyntax, err)
	}
	return decode(schema(ctx).Unify(user))
}

// Default returns the configuration of an empty file.
func Default() Config {
	ctx := cuecontext.New()
	c, err := decode(schema(ctx))
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return c
}

func schema(ctx *cue.Context) cue.Value {
	return ctx.CompileString(schemaCUE, cue.Filename(schemaFile)).
		LookupPath(cue.ParsePath("#Config"))
}

func decode(v cue.Value) (Config, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, loadError(ErrCodeInvalid, err)
	}
	var c Config
	if err := v.Decode(&c); err != nil {
		return Config{}, loadError(ErrCodeInvalid, err)
	}
	if c.Containers == nil {
		c.Containers = map[string]string{}
	}
	return c, nil
}

// loadError keeps the first CUE error's message and the first valid
// position among all errors. Disjunction summaries carry no position, so
// later errors are searched too, and a position in the user's file wins
// over one in the schema.
func loadError(code string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	le := &LoadError{Code: code, Message: errs[0].Error()}
	for _, e := range errs {
		for _, pos := range append([]token.Pos{e.Position()}, errors.Positions(e)...) {
			if !pos.IsValid() {
				continue
			}
			if pos.Filename() != schemaFile {
				le.Pos = pos
				return le
			}
			if !le.Pos.IsValid() {
				le.Pos = pos
			}
		}
	}
	return le
}

// Level maps log_level to a slog level.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Client returns the configured client id and whether one was set.
func (c Config) Client() (id.ClientID, bool) {
	return id.ClientID(c.ClientID), c.ClientID != 0
}

// ContainerSpec names a container to open at startup.
type ContainerSpec struct {
	ID   value.ContainerID
	Kind sequence.Kind
}

// ContainerSpecs returns the configured containers sorted by id.
func (c Config) ContainerSpecs() ([]ContainerSpec, error) {
	out := make([]ContainerSpec, 0, len(c.Containers))
	for name, kind := range c.Containers {
		k, err := sequence.ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("container %s: %w", name, err)
		}
		out = append(out, ContainerSpec{ID: value.ContainerID(name), Kind: k})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
