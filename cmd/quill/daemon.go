package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillpress/quill/internal/daemon"
	"github.com/quillpress/quill/internal/engine"
	"github.com/quillpress/quill/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Keep syncing in the foreground",
	Long: `Run the sync daemon in the foreground.

The daemon will:
  1. Run a sync pass on startup
  2. Watch the article store for writes (e.g. 'quill add' in another shell)
  3. Run a pass once the store has been quiet for daemon.debounce
  4. Run a pass every daemon.interval

Failed passes are logged and retried on the next trigger.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		st := openStore(ctx)
		defer st.Close()

		eng := newEngine(st, newClient(), nil)
		d := newDaemon(eng, st.Path())

		fmt.Printf("%s Starting quill sync daemon...\n", ui.RenderAccent("🚀"))
		printDaemonInfo(st.Path())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil {
			fatal("daemon stopped with error: %v", err)
		}
		fmt.Printf("Daemon stopped after %d pass(es)\n", d.Passes())
	},
}

func newDaemon(eng *engine.Engine, dbPath string) *daemon.Daemon {
	d, err := daemon.NewWithConfig(eng, dbPath, &daemon.Config{
		Interval:         cfg.Daemon.Interval,
		DebounceInterval: cfg.Daemon.Debounce,
		SyncOnStart:      true,
		Logger:           logger,
	})
	if err != nil {
		fatal("failed to create daemon: %v", err)
	}
	return d
}

func printDaemonInfo(dbPath string) {
	fmt.Printf("   Store: %s\n", dbPath)
	fmt.Printf("   Server: %s\n", cfg.Server.URL)
	fmt.Printf("   Interval: %s\n", cfg.Daemon.Interval)
	fmt.Printf("   Debounce: %s\n", cfg.Daemon.Debounce)
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
