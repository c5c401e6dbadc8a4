// lad is the Lightning Analysis Daemon CLI: one-shot analysis, a watching
// daemon, and an MCP stdio server over the same scheduling core.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/lad/internal/analysis"
	"github.com/standardbeagle/lad/internal/apply"
	"github.com/standardbeagle/lad/internal/config"
	"github.com/standardbeagle/lad/internal/daemon"
	"github.com/standardbeagle/lad/internal/debug"
	"github.com/standardbeagle/lad/internal/mcp"
	"github.com/standardbeagle/lad/internal/version"
	"github.com/standardbeagle/lad/internal/watch"
)

func main() {
	app := &cli.App{
		Name:                   "lad",
		Usage:                  "Incremental background code analysis",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (defaults to the working directory)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Analyze only files matching glob patterns (e.g. --include 'src/**/*.go')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Skip files matching glob patterns (added to config exclusions)",
			},
		},
		Commands: []*cli.Command{
			analyzeCommand(),
			watchCommand(),
			mcpCommand(),
			passesCommand(),
			configCommand(),
			versionCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfigWithOverrides loads the merged configuration and applies CLI
// flag overrides.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		root, _ = os.Getwd()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load config for %s: %w", absRoot, err)
	}
	if include := c.StringSlice("include"); len(include) > 0 {
		cfg.Include = include
	}
	if exclude := c.StringSlice("exclude"); len(exclude) > 0 {
		cfg.Exclude = append(cfg.Exclude, exclude...)
	}
	return cfg, nil
}

// newDaemon builds the registry and daemon for a loaded config.
func newDaemon(cfg *config.Config) (*daemon.Daemon, error) {
	registry, err := analysis.BuildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg, registry, apply.SyncDispatcher{}), nil
}

// tuneProcs caps GOMAXPROCS; too many goroutines just contend on the apply
// gate. LAD_MAX_PROCS overrides for unusual machines.
func tuneProcs() {
	maxProcs := 4
	if env := os.Getenv("LAD_MAX_PROCS"); env != "" {
		if parsed, err := strconv.Atoi(env); err == nil && parsed > 0 {
			maxProcs = parsed
		} else {
			fmt.Fprintf(os.Stderr, "Warning: invalid LAD_MAX_PROCS value %q, using default %d\n", env, maxProcs)
		}
	}
	runtime.GOMAXPROCS(maxProcs)
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal() os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return <-sigChan
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Watch the project and keep analysis results current",
		Action: func(c *cli.Context) error {
			tuneProcs()
			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}
			d, err := newDaemon(cfg)
			if err != nil {
				return err
			}
			defer d.Dispose()

			watcher, err := watch.New(cfg, d)
			if err != nil {
				return err
			}
			if err := watcher.Start(); err != nil {
				return err
			}
			defer watcher.Stop()

			fmt.Printf("lad watching %s (ctrl-c to stop)\n", cfg.Project.Root)
			sig := waitForSignal()
			fmt.Printf("\nReceived %v, shutting down\n", sig)
			return nil
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the daemon over the Model Context Protocol on stdio",
		Action: func(c *cli.Context) error {
			debug.SetMCPMode(true)
			tuneProcs()

			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return debug.Fatal("failed to load config: %v\n", err)
			}
			d, err := newDaemon(cfg)
			if err != nil {
				return debug.Fatal("failed to start daemon: %v\n", err)
			}
			defer d.Dispose()

			watcher, err := watch.New(cfg, d)
			if err != nil {
				return debug.Fatal("failed to create watcher: %v\n", err)
			}
			if err := watcher.Start(); err != nil {
				return debug.Fatal("failed to start watcher: %v\n", err)
			}
			defer watcher.Stop()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			errChan := make(chan error, 1)
			go func() {
				errChan <- mcp.NewServer(cfg, d).Run(ctx)
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errChan:
				if err != nil && ctx.Err() == nil {
					return debug.Fatal("MCP server error: %v\n", err)
				}
			case <-sigChan:
				cancel()
				select {
				case <-errChan:
				case <-time.After(5 * time.Second):
				}
			}
			return nil
		},
	}
}

func passesCommand() *cli.Command {
	return &cli.Command{
		Name:  "passes",
		Usage: "List registered pass kinds in execution order",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return err
			}
			registry, err := analysis.BuildRegistry(cfg)
			if err != nil {
				return err
			}
			order, err := registry.BuildOrder()
			if err != nil {
				return err
			}
			for i, desc := range order {
				if len(desc.RunsAfter) > 0 {
					fmt.Printf("%d. %s (after %v)\n", i+1, desc.Kind, desc.RunsAfter)
				} else {
					fmt.Printf("%d. %s\n", i+1, desc.Kind)
				}
			}
			for _, kind := range registry.Kinds() {
				if desc := registry.Lookup(kind); desc != nil && desc.Disabled {
					fmt.Printf("-- %s (disabled)\n", kind)
				}
			}
			return nil
		},
	}
}

const configTemplate = `// lad project configuration
project {
    name "%s"
}

daemon {
    auto_reparse_delay_ms 300
    workers 0
    update_by_timer true
    max_document_size "10MB"
}

passes {
    todo_keywords "todo" "fixme" "hack" "xxx"
    fuzzy_threshold 0.85
    long_line_limit 120
}

watch {
    enabled true
    debounce_ms 300
    follow_symlinks false
}

exclude "**/node_modules/**" "**/.git/**"
`

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the project configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a starter .lad.kdl in the project root",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfigWithOverrides(c)
					if err != nil {
						return err
					}
					path := filepath.Join(cfg.Project.Root, config.ConfigFileName)
					if _, err := os.Stat(path); err == nil {
						return fmt.Errorf("%s already exists", path)
					}
					name := cfg.Project.Name
					if name == "" {
						name = filepath.Base(cfg.Project.Root)
					}
					if err := os.WriteFile(path, []byte(fmt.Sprintf(configTemplate, name)), 0o644); err != nil {
						return err
					}
					fmt.Printf("Wrote %s\n", path)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective merged configuration as JSON",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfigWithOverrides(c)
					if err != nil {
						return err
					}
					out, err := json.MarshalIndent(cfg, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(out))
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Check the configuration and pass graph",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfigWithOverrides(c)
					if err != nil {
						return err
					}
					if _, err := analysis.BuildRegistry(cfg); err != nil {
						return err
					}
					fmt.Println("Configuration OK")
					return nil
				},
			},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print detailed version information",
		Action: func(c *cli.Context) error {
			fmt.Println(version.FullInfo())
			fmt.Printf("build id: %s\n", version.BuildID())
			return nil
		},
	}
}
