package config

import (
	"errors"
	"fmt"

	laderrors "github.com/standardbeagle/lad/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults
// Returns an error if validation fails
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return laderrors.NewConfigurationError("project", "", err)
	}

	if err := v.validateDaemonConfig(&cfg.Daemon); err != nil {
		return laderrors.NewConfigurationError("daemon", "", err)
	}

	if err := v.validatePassesConfig(&cfg.Passes); err != nil {
		return laderrors.NewConfigurationError("passes", "", err)
	}

	if err := v.validateWatchConfig(&cfg.Watch); err != nil {
		return laderrors.NewConfigurationError("watch", "", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

// validateProjectConfig validates project configuration
func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}

	return nil
}

// validateDaemonConfig validates scheduling configuration
func (v *Validator) validateDaemonConfig(daemon *Daemon) error {
	if daemon.AutoReparseDelayMs < 0 {
		return fmt.Errorf("AutoReparseDelayMs cannot be negative, got %d", daemon.AutoReparseDelayMs)
	}

	// Workers: 0 means auto-detect (will be set by smart defaults)
	if daemon.Workers < 0 {
		return fmt.Errorf("Workers cannot be negative, got %d", daemon.Workers)
	}

	if daemon.MaxDocumentSize <= 0 {
		return fmt.Errorf("MaxDocumentSize must be positive, got %d", daemon.MaxDocumentSize)
	}

	if daemon.MaxDocumentSize > 100*1024*1024 {
		return fmt.Errorf("MaxDocumentSize should not exceed 100MB, got %d", daemon.MaxDocumentSize)
	}

	return nil
}

// validatePassesConfig validates pass configuration
func (v *Validator) validatePassesConfig(passes *Passes) error {
	if passes.FuzzyThreshold < 0 || passes.FuzzyThreshold > 1 {
		return fmt.Errorf("FuzzyThreshold must be within [0,1], got %g", passes.FuzzyThreshold)
	}

	if passes.LongLineLimit < 0 {
		return fmt.Errorf("LongLineLimit cannot be negative, got %d", passes.LongLineLimit)
	}

	return nil
}

// validateWatchConfig validates watcher configuration
func (v *Validator) validateWatchConfig(watch *Watch) error {
	if watch.DebounceMs < 0 {
		return fmt.Errorf("DebounceMs cannot be negative, got %d", watch.DebounceMs)
	}

	return nil
}

// setSmartDefaults applies smart defaults based on system capabilities
func (v *Validator) setSmartDefaults(cfg *Config) {
	// Worker pool sized from the machine, capped so the apply actor keeps up
	if cfg.Daemon.Workers == 0 {
		cfg.Daemon.Workers = SmartWorkerCount()
	}

	if cfg.Daemon.AutoReparseDelayMs == 0 {
		cfg.Daemon.AutoReparseDelayMs = DefaultConfig("").Daemon.AutoReparseDelayMs
	}

	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = cfg.Daemon.AutoReparseDelayMs
	}

	if len(cfg.Passes.TodoKeywords) == 0 {
		cfg.Passes.TodoKeywords = DefaultConfig("").Passes.TodoKeywords
	}

	if cfg.Passes.FuzzyThreshold == 0 {
		cfg.Passes.FuzzyThreshold = DefaultConfig("").Passes.FuzzyThreshold
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
