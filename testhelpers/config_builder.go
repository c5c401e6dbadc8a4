// Package testhelpers provides shared utilities for testing the analysis
// daemon.
package testhelpers

import (
	"github.com/standardbeagle/lad/internal/config"
)

// TestConfigBuilder provides a fluent API for building test configs with
// fast, deterministic defaults: short debounce windows, two workers, and no
// filesystem watching unless a test opts in.
//
//	cfg := testhelpers.NewTestConfigBuilder(root).
//		WithInclude("**/*.txt").
//		WithDebounce(10).
//		Build()
type TestConfigBuilder struct {
	cfg *config.Config
}

// NewTestConfigBuilder creates a config builder rooted at projectRoot.
func NewTestConfigBuilder(projectRoot string) *TestConfigBuilder {
	cfg := config.DefaultConfig(projectRoot)
	cfg.Project.Name = "test-project"
	cfg.Daemon.AutoReparseDelayMs = 10
	cfg.Daemon.Workers = 2
	cfg.Watch.Enabled = false
	cfg.Watch.DebounceMs = 10
	return &TestConfigBuilder{cfg: cfg}
}

// WithDebounce overrides both the reparse and the watcher debounce, in
// milliseconds.
func (b *TestConfigBuilder) WithDebounce(ms int) *TestConfigBuilder {
	b.cfg.Daemon.AutoReparseDelayMs = ms
	b.cfg.Watch.DebounceMs = ms
	return b
}

// WithWorkers sets the pass worker-pool size.
func (b *TestConfigBuilder) WithWorkers(n int) *TestConfigBuilder {
	b.cfg.Daemon.Workers = n
	return b
}

// WithWatch enables the filesystem watcher.
func (b *TestConfigBuilder) WithWatch() *TestConfigBuilder {
	b.cfg.Watch.Enabled = true
	return b
}

// WithInclude sets the include patterns, replacing any defaults.
func (b *TestConfigBuilder) WithInclude(patterns ...string) *TestConfigBuilder {
	b.cfg.Include = patterns
	return b
}

// WithExclude adds exclusion patterns.
func (b *TestConfigBuilder) WithExclude(patterns ...string) *TestConfigBuilder {
	b.cfg.Exclude = append(b.cfg.Exclude, patterns...)
	return b
}

// WithDisabledPasses switches off pass kinds by name.
func (b *TestConfigBuilder) WithDisabledPasses(kinds ...string) *TestConfigBuilder {
	b.cfg.Passes.Disabled = append(b.cfg.Passes.Disabled, kinds...)
	return b
}

// Build returns the finished config.
func (b *TestConfigBuilder) Build() *config.Config {
	return b.cfg
}
