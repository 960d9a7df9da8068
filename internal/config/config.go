// Package config reads and writes the .provreplay-config.yml file.
//
// The file is looked up from a start directory through every parent
// directory. A missing file is an empty configuration. The raw YAML is
// validated against an embedded CUE schema before it is decoded.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/provreplay/internal/graph"
	"github.com/roach88/provreplay/internal/identity"
)

// FileName is the name of the configuration file.
const FileName = ".provreplay-config.yml"

// DefaultEnvironment is the environment of codes built from mock_code.
const DefaultEnvironment = "localhost"

//go:embed schema.cue
var schemaCUE string

// Config is the decoded configuration file.
type Config struct {
	MockCode    map[string]string `yaml:"mock_code,omitempty"`
	ExportCache ExportCache       `yaml:"export_cache,omitempty"`

	path string
}

// ExportCache is the export_cache section.
type ExportCache struct {
	DefaultCacheDir          string              `yaml:"default_cache_dir,omitempty"`
	CalcJobIgnoredInputs     []string            `yaml:"calcjob_ignored_inputs,omitempty"`
	CalcJobIgnoredAttributes []string            `yaml:"calcjob_ignored_attributes,omitempty"`
	NodeIgnoredAttributes    map[string][]string `yaml:"node_ignored_attributes,omitempty"`
}

// ValidationError reports a configuration file rejected by the schema.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// IsValidationError returns true if err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Discover returns the path of the nearest configuration file in start or
// one of its parents, and whether one was found.
func Discover(start string) (string, bool, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false, err
	}
	for {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		switch {
		case err == nil && info.Mode().IsRegular():
			return candidate, true, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", false, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Load discovers and reads the configuration starting at start. Without a
// file the configuration is empty and Save writes to start.
func Load(start string) (*Config, error) {
	path, found, err := Discover(start)
	if err != nil {
		return nil, fmt.Errorf("discover config: %w", err)
	}
	if !found {
		abs, err := filepath.Abs(start)
		if err != nil {
			return nil, err
		}
		return &Config{path: filepath.Join(abs, FileName)}, nil
	}
	return Read(path)
}

// Read reads and validates the configuration file at path.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse validates and decodes YAML configuration. path is recorded as the
// file Save writes to and used in error messages.
func Parse(data []byte, path string) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{File: path, Message: err.Error()}
	}
	if err := validate(raw, path); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ValidationError{File: path, Message: err.Error()}
	}
	cfg.path = path
	return cfg, nil
}

// validate checks raw against the #Config schema.
func validate(raw map[string]any, path string) error {
	if raw == nil {
		raw = map[string]any{}
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := schema.Unify(ctx.Encode(raw))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err, path)
	}
	return nil
}

// formatCUEError turns the first CUE error into a ValidationError.
func formatCUEError(err error, path string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{File: path, Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ValidationError{
		File:    path,
		Field:   strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}

// Path returns the file the configuration was read from or will be
// saved to.
func (c *Config) Path() string {
	return c.path
}

// Save writes the configuration as YAML to Path.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// CacheDir returns export_cache.default_cache_dir. A relative directory
// is taken relative to the configuration file. Empty if unset.
func (c *Config) CacheDir() string {
	dir := c.ExportCache.DefaultCacheDir
	if dir == "" || filepath.IsAbs(dir) || c.path == "" {
		return dir
	}
	return filepath.Join(filepath.Dir(c.path), dir)
}

// Identity builds the identity configuration from export_cache.
func (c *Config) Identity() identity.Config {
	opts := []identity.ConfigOption{
		identity.IgnoreCalcJobInputs(c.ExportCache.CalcJobIgnoredInputs...),
		identity.IgnoreCalcJobAttributes(c.ExportCache.CalcJobIgnoredAttributes...),
	}
	for typeName, keys := range c.ExportCache.NodeIgnoredAttributes {
		opts = append(opts, identity.IgnoreNodeAttributes(typeName, keys...))
	}
	return identity.NewConfig(opts...)
}

// Action selects what CodeFor does when a label has no mock_code entry.
type Action string

const (
	// ActionRead looks the executable up on PATH without recording it.
	ActionRead Action = "read"

	// ActionGenerate looks the executable up on PATH and saves it.
	ActionGenerate Action = "generate"

	// ActionRequire fails.
	ActionRequire Action = "require"
)

// ParseAction validates s as an Action. Empty means read.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case "":
		return ActionRead, nil
	case ActionRead, ActionGenerate, ActionRequire:
		return Action(s), nil
	}
	return "", fmt.Errorf("invalid config action %q: must be read, generate, or require", s)
}

// CodeFor returns an unstored code node for label whose executable comes
// from mock_code.
func (c *Config) CodeFor(label, inputPlugin string, action Action) (*graph.Node, error) {
	if exe, ok := c.MockCode[label]; ok {
		return graph.NewCode(label, inputPlugin, DefaultEnvironment, exe), nil
	}
	if action == ActionRequire {
		return nil, fmt.Errorf("no mock_code entry for %q in %s", label, c.path)
	}

	exe, err := exec.LookPath(label)
	if err != nil {
		return nil, fmt.Errorf("no mock_code entry for %q and not found on PATH: %w", label, err)
	}
	if action == ActionGenerate {
		if c.MockCode == nil {
			c.MockCode = make(map[string]string)
		}
		c.MockCode[label] = exe
		if err := c.Save(); err != nil {
			return nil, err
		}
	}
	return graph.NewCode(label, inputPlugin, DefaultEnvironment, exe), nil
}
