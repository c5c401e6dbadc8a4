package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/standardbeagle/lad/internal/config"
	"github.com/standardbeagle/lad/internal/export"
	"github.com/standardbeagle/lad/internal/types"
)

// oneShotTimeout bounds a full one-shot analysis run.
const oneShotTimeout = 2 * time.Minute

// fileReport is the per-file JSON payload of `lad analyze --json`.
type fileReport struct {
	Path        string                  `json:"path"`
	Records     []types.HighlightRecord `json:"records"`
	Diagnostics []protocol.Diagnostic   `json:"diagnostics"`
	Clean       bool                    `json:"clean"`
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Aliases:   []string{"a"},
		Usage:     "Analyze files once and print the results",
		ArgsUsage: "[paths...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "Only print records of one pass kind (syntax, semantic, inspections, todo)",
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	tuneProcs()
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	paths, err := collectTargets(c, cfg)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("nothing to analyze: pass file paths or configure include patterns")
	}

	d, err := newDaemon(cfg)
	if err != nil {
		return err
	}
	defer d.Dispose()

	// Open everything first, then run once; per-file debounced restarts
	// would make a one-shot invocation quadratic.
	d.DisableUpdateByTimer("one-shot analysis")
	var docs []types.DocumentID
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", path, err)
			continue
		}
		if int64(len(data)) > cfg.Daemon.MaxDocumentSize {
			fmt.Fprintf(os.Stderr, "Warning: skipping oversized %s\n", path)
			continue
		}
		doc, err := d.OpenDocument(uri.File(path), string(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", path, err)
			continue
		}
		docs = append(docs, doc.ID())
	}
	if len(docs) == 0 {
		return fmt.Errorf("no readable files to analyze")
	}

	d.RestartNow("one-shot analysis")
	if err := d.WaitForIdle(oneShotTimeout); err != nil {
		return err
	}

	kindFilter := types.PassKind(c.String("kind"))
	var reports []fileReport
	for _, id := range docs {
		doc := d.Documents().Get(id)
		if doc == nil {
			continue
		}
		records := d.Model().Snapshot(id)
		if kindFilter != "" {
			filtered := records[:0]
			for _, rec := range records {
				if rec.Kind == kindFilter {
					filtered = append(filtered, rec)
				}
			}
			records = filtered
		}
		snap := doc.Snapshot()
		reports = append(reports, fileReport{
			Path:        snap.URI.Filename(),
			Records:     records,
			Diagnostics: export.Diagnostics(snap, records),
			Clean:       d.DirtyMap().AllClean(id),
		})
	}

	if c.Bool("json") {
		out, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	printReports(reports)
	return nil
}

// collectTargets resolves the positional arguments, or expands the
// configured include globs under the project root when none are given.
func collectTargets(c *cli.Context, cfg *config.Config) ([]string, error) {
	if c.Args().Len() > 0 {
		paths := make([]string, 0, c.Args().Len())
		for _, arg := range c.Args().Slice() {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return nil, err
			}
			paths = append(paths, abs)
		}
		return paths, nil
	}

	var paths []string
	seen := make(map[string]bool)
	for _, pattern := range cfg.Include {
		matches, err := doublestar.FilepathGlob(filepath.Join(cfg.Project.Root, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad include pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func printReports(reports []fileReport) {
	for _, report := range reports {
		fmt.Printf("%s: %d records\n", report.Path, len(report.Records))
		for _, diag := range report.Diagnostics {
			fmt.Printf("  %s:%d:%d [%s] %s: %s\n",
				report.Path,
				diag.Range.Start.Line+1, diag.Range.Start.Character+1,
				severityName(diag.Severity), diag.Code, diag.Message)
		}
	}
}

func severityName(s protocol.DiagnosticSeverity) string {
	switch s {
	case protocol.DiagnosticSeverityError:
		return "error"
	case protocol.DiagnosticSeverityWarning:
		return "warning"
	case protocol.DiagnosticSeverityHint:
		return "hint"
	default:
		return "info"
	}
}
