package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/standardbeagle/lad/internal/config"
)

func TestConfigTemplateParses(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(configTemplate, "demo")), 0o644))

	cfg, err := config.LoadKDLFile(path, root)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, 300, cfg.Daemon.AutoReparseDelayMs)
	assert.True(t, cfg.Daemon.UpdateByTimer)
	assert.Equal(t, 0.85, cfg.Passes.FuzzyThreshold)
	assert.Contains(t, cfg.Exclude, "**/node_modules/**")
}

func TestSeverityName(t *testing.T) {
	assert.Equal(t, "error", severityName(protocol.DiagnosticSeverityError))
	assert.Equal(t, "warning", severityName(protocol.DiagnosticSeverityWarning))
	assert.Equal(t, "hint", severityName(protocol.DiagnosticSeverityHint))
	assert.Equal(t, "info", severityName(protocol.DiagnosticSeverityInformation))
}
