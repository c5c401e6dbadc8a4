package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/standardbeagle/lad/internal/types"
)

const (
	// ConfigFileName is the project-level configuration file
	ConfigFileName = ".lad.kdl"

	// GlobalConfigFileName is looked up in the user home directory
	GlobalConfigFileName = ".lad.kdl"
)

// Config is the full daemon configuration, merged from the global and the
// project-level KDL files.
type Config struct {
	Version int
	Project Project
	Daemon  Daemon
	Passes  Passes
	Watch   Watch
	Include []string
	Exclude []string
}

// Project identifies the analyzed project
type Project struct {
	Root string
	Name string
}

// Daemon holds the scheduling knobs
type Daemon struct {
	// AutoReparseDelayMs is the debounce window between an edit burst and
	// the restarted run.
	AutoReparseDelayMs int

	// Workers caps the number of concurrently executing passes. 0 means
	// pick a smart default from the machine.
	Workers int

	// UpdateByTimer enables automatic debounced restarts. Explicit restart
	// requests are honored regardless.
	UpdateByTimer bool

	// MaxDocumentSize skips analysis for documents larger than this.
	MaxDocumentSize int64
}

// Passes configures the pass registry and the built-in passes
type Passes struct {
	// Manifest is an optional passes.toml declaring external pass kinds.
	Manifest string

	// Disabled lists pass kinds switched off for this project.
	Disabled []string

	// TodoKeywords are the markers the todo pass looks for. Matching is
	// stem-based so "fixme"/"fixmes" both hit.
	TodoKeywords []string

	// FuzzyThreshold is the similarity floor for catching misspelled todo
	// markers (0..1).
	FuzzyThreshold float64

	// LongLineLimit is the inspections pass line-length threshold.
	LongLineLimit int
}

// Watch configures the filesystem watcher
type Watch struct {
	Enabled        bool
	DebounceMs     int
	FollowSymlinks bool
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig(root string) *Config {
	if root == "" {
		root, _ = os.Getwd()
	}
	return &Config{
		Version: 1,
		Project: Project{Root: root},
		Daemon: Daemon{
			AutoReparseDelayMs: types.DefaultAutoReparseDelayMs,
			Workers:            0, // resolved by the validator
			UpdateByTimer:      true,
			MaxDocumentSize:    types.DefaultMaxDocumentSize,
		},
		Passes: Passes{
			TodoKeywords:   []string{"todo", "fixme", "hack", "xxx"},
			FuzzyThreshold: 0.85,
			LongLineLimit:  120,
		},
		Watch: Watch{
			Enabled:        true,
			DebounceMs:     types.DefaultAutoReparseDelayMs,
			FollowSymlinks: false,
		},
		Include: []string{},
		Exclude: getDefaultExclusions(),
	}
}

// Load reads configuration for the given project root: defaults, overlaid
// with the global ~/.lad.kdl when present, overlaid with the project
// .lad.kdl when present, then validated.
func Load(projectRoot string) (*Config, error) {
	home, _ := os.UserHomeDir()
	return LoadWithGlobalDir(projectRoot, home)
}

// LoadWithGlobalDir is Load with an explicit directory for the global config
// file, used by tests.
func LoadWithGlobalDir(projectRoot, globalDir string) (*Config, error) {
	cfg := DefaultConfig(projectRoot)

	if globalDir != "" {
		globalPath := filepath.Join(globalDir, GlobalConfigFileName)
		if _, err := os.Stat(globalPath); err == nil {
			global, err := LoadKDLFile(globalPath, projectRoot)
			if err != nil {
				return nil, err
			}
			if global != nil {
				cfg = mergeConfigs(cfg, global)
			}
		}
	}

	project, err := LoadKDL(projectRoot)
	if err != nil {
		return nil, err
	}
	if project != nil {
		cfg = mergeConfigs(cfg, project)
	}

	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeConfigs overlays the overlay config onto base. Scalars win when the
// overlay actually set them; Include is replaced, Exclude is unioned and
// deduplicated so project files can add to the global exclusions.
func mergeConfigs(base, overlay *Config) *Config {
	merged := *base

	if overlay.Project.Root != "" {
		merged.Project.Root = overlay.Project.Root
	}
	if overlay.Project.Name != "" {
		merged.Project.Name = overlay.Project.Name
	}

	if overlay.Daemon.AutoReparseDelayMs != 0 {
		merged.Daemon.AutoReparseDelayMs = overlay.Daemon.AutoReparseDelayMs
	}
	if overlay.Daemon.Workers != 0 {
		merged.Daemon.Workers = overlay.Daemon.Workers
	}
	merged.Daemon.UpdateByTimer = overlay.Daemon.UpdateByTimer
	if overlay.Daemon.MaxDocumentSize != 0 {
		merged.Daemon.MaxDocumentSize = overlay.Daemon.MaxDocumentSize
	}

	if overlay.Passes.Manifest != "" {
		merged.Passes.Manifest = overlay.Passes.Manifest
	}
	if len(overlay.Passes.Disabled) > 0 {
		merged.Passes.Disabled = overlay.Passes.Disabled
	}
	if len(overlay.Passes.TodoKeywords) > 0 {
		merged.Passes.TodoKeywords = overlay.Passes.TodoKeywords
	}
	if overlay.Passes.FuzzyThreshold != 0 {
		merged.Passes.FuzzyThreshold = overlay.Passes.FuzzyThreshold
	}
	if overlay.Passes.LongLineLimit != 0 {
		merged.Passes.LongLineLimit = overlay.Passes.LongLineLimit
	}

	merged.Watch.Enabled = overlay.Watch.Enabled
	if overlay.Watch.DebounceMs != 0 {
		merged.Watch.DebounceMs = overlay.Watch.DebounceMs
	}
	merged.Watch.FollowSymlinks = overlay.Watch.FollowSymlinks

	if len(overlay.Include) > 0 {
		merged.Include = overlay.Include
	}
	if len(overlay.Exclude) > 0 {
		merged.Exclude = dedupStrings(append(append([]string{}, base.Exclude...), overlay.Exclude...))
	}

	return &merged
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// SmartWorkerCount resolves the worker-pool size when the config left it at
// zero: the number of CPUs, capped so passes never starve the apply actor.
func SmartWorkerCount() int {
	n := runtime.NumCPU()
	if n > types.DefaultWorkerPoolCap {
		n = types.DefaultWorkerPoolCap
	}
	if n < 1 {
		n = 1
	}
	return n
}
