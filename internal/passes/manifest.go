package passes

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	laderrors "github.com/standardbeagle/lad/internal/errors"
	"github.com/standardbeagle/lad/internal/types"
)

// Manifest is the optional passes.toml a project ships to reshape the pass
// graph: re-prioritize kinds, add runs-after edges, or switch kinds off.
// Every entry must name a registered kind; the manifest declares scheduling,
// implementations come from the registry.
type Manifest struct {
	Passes []ManifestEntry `toml:"pass"`
}

// ManifestEntry reconfigures one pass kind.
type ManifestEntry struct {
	Kind      string   `toml:"kind"`
	RunsAfter []string `toml:"runs_after"`
	Priority  *int     `toml:"priority"`
	Disabled  *bool    `toml:"disabled"`
}

// LoadManifest parses a passes.toml file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, laderrors.NewConfigurationError("passes.manifest", path, err)
	}
	return ParseManifest(data, path)
}

// ParseManifest decodes manifest bytes. origin is used in error messages.
func ParseManifest(data []byte, origin string) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, laderrors.NewConfigurationError("passes.manifest", origin, err)
	}
	return &m, nil
}

// Apply overlays the manifest onto the registry. All entry problems are
// collected and reported together; the resulting graph is re-validated by
// the next BuildOrder call.
func (m *Manifest) Apply(r *Registry) error {
	var errs []error
	seen := make(map[string]bool, len(m.Passes))

	for _, entry := range m.Passes {
		if entry.Kind == "" {
			errs = append(errs, laderrors.NewConfigurationError(
				"passes.manifest.kind", "", fmt.Errorf("manifest entry without a kind")))
			continue
		}
		if seen[entry.Kind] {
			errs = append(errs, laderrors.NewConfigurationError(
				"passes.manifest.kind", entry.Kind,
				fmt.Errorf("kind appears in the manifest twice")))
			continue
		}
		seen[entry.Kind] = true

		kind := types.PassKind(entry.Kind)
		r.mu.Lock()
		d := r.byKnd[kind]
		if d == nil {
			errs = append(errs, r.unknownKindLocked("passes.manifest.kind", kind))
			r.mu.Unlock()
			continue
		}
		if entry.RunsAfter != nil {
			deps := make([]types.PassKind, 0, len(entry.RunsAfter))
			for _, dep := range entry.RunsAfter {
				deps = append(deps, types.PassKind(dep))
			}
			d.RunsAfter = deps
		}
		if entry.Priority != nil {
			d.Priority = *entry.Priority
		}
		if entry.Disabled != nil {
			d.Disabled = *entry.Disabled
		}
		r.mu.Unlock()
	}

	if len(errs) == 1 {
		return errs[0]
	}
	if len(errs) > 0 {
		return laderrors.NewMultiError(errs)
	}
	return nil
}
