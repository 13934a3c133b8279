// Package config loads and validates the optional .gridbench YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/deixis/gridbench/internal/grid"
)

// Default values for harness configuration.
const (
	DefaultRunnerDir  = "runners"
	DefaultResultsDir = "results"
)

// Config holds the parsed .gridbench configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version       int                 `yaml:"version"`
	RawRunnerDir  string              `yaml:"runner_dir"`  // directory of runner descriptor files
	RawResultsDir string              `yaml:"results_dir"` // directory for result tables and stored invocations
	Disabled      []string            `yaml:"disabled"`    // runner names excluded from every invocation
	Params        map[string][]string `yaml:"params"`      // default invoker parameter overrides
	Verbose       bool                `yaml:"verbose"`
}

// RunnerDir returns the configured runner directory or the default,
// resolved against root when relative.
func (c *Config) RunnerDir(root string) string {
	dir := c.RawRunnerDir
	if dir == "" {
		dir = DefaultRunnerDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return dir
}

// ResultsDir returns the configured results directory or the default,
// resolved against root when relative.
func (c *Config) ResultsDir(root string) string {
	dir := c.RawResultsDir
	if dir == "" {
		dir = DefaultResultsDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return dir
}

// DefaultOverrides returns the configured default parameter overrides
// as a ParamSet. YAML mappings carry no reliable order, so keys are
// added in sorted order to keep grid enumeration deterministic.
func (c *Config) DefaultOverrides() *grid.ParamSet {
	s := grid.NewParamSet()
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Add(k, c.Params[k])
	}
	return s
}

// IsDisabled reports whether the named runner is disabled.
func (c *Config) IsDisabled(name string) bool {
	for _, d := range c.Disabled {
		if d == name {
			return true
		}
	}
	return false
}

// LoadResult holds the parsed config and the discovered repository root.
type LoadResult struct {
	Config   *Config
	RepoRoot string // directory containing .gridbench or go.mod; falls back to workspace
}

// Load reads the .gridbench file from the repository root.
// The repository root is discovered by walking upward from workspace
// looking for a .gridbench file or go.mod. If no .gridbench file
// exists, a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findRepoRoot(workspace)
	if err != nil {
		// No marker found; use workspace as root.
		root = workspace
	}

	path := filepath.Join(root, ".gridbench")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}, RepoRoot: root}, nil
		}
		return nil, fmt.Errorf("reading .gridbench: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing .gridbench: %w", err)
	}
	return &LoadResult{Config: cfg, RepoRoot: root}, nil
}

// findRepoRoot walks upward from dir looking for a directory containing
// a .gridbench file or go.mod.
func findRepoRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".gridbench")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no .gridbench or go.mod found")
		}
		dir = parent
	}
}
