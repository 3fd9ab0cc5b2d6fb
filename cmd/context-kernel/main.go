// context-kernel is an MCP stdio server providing session-scoped shared
// context for cooperating agents: a namespace store with quota and TTL,
// zero-copy paging and search, a sandboxed script executor with persistent
// state, and a deferred-query queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lachlan-jones5/oh-my-opencode/internal/config"
	"github.com/lachlan-jones5/oh-my-opencode/internal/kernel"
	"github.com/lachlan-jones5/oh-my-opencode/internal/logging"
	"github.com/lachlan-jones5/oh-my-opencode/internal/server"
)

// version is stamped by the build.
var version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "context-kernel",
	Short: "Session-scoped context kernel (MCP stdio server)",
	Long: `context-kernel serves a shared, session-scoped namespace over MCP stdio.

Agents load large content once, then page, search and script over it
without re-serializing it through their own context windows. Scripts run
in a persistent per-session sandbox and can queue deferred queries for
the parent agent to fulfill.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "context-kernel %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging to the state dir")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.DebugMode = true
		cfg.Logging.Level = "debug"
	}

	// Stdout belongs to the protocol, so all diagnostics go to files.
	if err := logging.Initialize(logging.Config{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Directory:  cfg.LogDirectory(),
		Categories: cfg.Logging.Categories,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logging init failed: %v\n", err)
	}
	defer logging.CloseAll()

	k := kernel.New(cfg.KernelOptions())
	defer k.Close()
	srv := server.New(k, version)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Boot("context-kernel %s starting (quota=%dMB ttl=%ds timeout=%ds)",
		version, cfg.Kernel.QuotaMB, cfg.Kernel.IdleTTLSeconds, cfg.Sandbox.ExecTimeoutSeconds)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ServeStdio(ctx)
	})

	g.Go(func() error {
		return sweepLoop(ctx, k, cfg.SweepInterval())
	})

	if configPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, configPath, func(next *config.Config) {
				logging.SetLevel(next.Logging.Level)
			})
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logging.Boot("context-kernel stopped")
	return err
}

// sweepLoop evicts idle sessions in the background. The kernel also
// sweeps inline before every operation; the ticker only bounds how long
// an abandoned session can outlive its TTL with no traffic at all.
func sweepLoop(ctx context.Context, k *kernel.Kernel, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := k.Sweep(); n > 0 {
				logging.SessionDebug("background sweep evicted %d session(s)", n)
			}
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
