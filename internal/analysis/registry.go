package analysis

import (
	"github.com/standardbeagle/lad/internal/config"
	"github.com/standardbeagle/lad/internal/passes"
	"github.com/standardbeagle/lad/internal/types"
)

// BuildRegistry assembles the built-in passes, applies the project's
// disabled list, and overlays the external manifest when one is configured.
// The returned registry is validated; a bad graph surfaces here, before any
// run is scheduled.
func BuildRegistry(cfg *config.Config) (*passes.Registry, error) {
	reg := passes.NewRegistry()

	builtins := []passes.Descriptor{
		{
			Kind: types.KindSyntax,
			New:  func() passes.Pass { return NewSyntaxPass() },
		},
		{
			Kind:      types.KindSemantic,
			RunsAfter: []types.PassKind{types.KindSyntax},
			New:       func() passes.Pass { return NewSemanticPass() },
		},
		{
			Kind:      types.KindInspections,
			RunsAfter: []types.PassKind{types.KindSyntax},
			Priority:  10,
			New:       func() passes.Pass { return NewInspectionsPass(cfg.Passes.LongLineLimit) },
		},
		{
			Kind:     types.KindTodo,
			Priority: 20,
			New: func() passes.Pass {
				return NewTodoPass(cfg.Passes.TodoKeywords, cfg.Passes.FuzzyThreshold)
			},
		},
	}
	for _, d := range builtins {
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}

	if cfg.Passes.Manifest != "" {
		manifest, err := passes.LoadManifest(cfg.Passes.Manifest)
		if err != nil {
			return nil, err
		}
		if err := manifest.Apply(reg); err != nil {
			return nil, err
		}
	}

	for _, kind := range cfg.Passes.Disabled {
		if err := reg.SetDisabled(types.PassKind(kind), true); err != nil {
			return nil, err
		}
	}

	if _, err := reg.BuildOrder(); err != nil {
		return nil, err
	}
	return reg, nil
}
