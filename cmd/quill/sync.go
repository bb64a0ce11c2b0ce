package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillpress/quill/internal/engine"
	"github.com/quillpress/quill/internal/remote"
	"github.com/quillpress/quill/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync pass now",
	Long: `Reconcile the local store with the sync server.

A pass:
  1. Pulls the server's records (a failure here ends the pass)
  2. Pushes pending articles one at a time, retrying 503 with backoff
  3. Merges server records not yet held locally

Articles that fail to push stay pending for the next pass.`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")

		ctx, cancel := signalContext()
		defer cancel()

		st := openStore(ctx)
		defer st.Close()

		var observer engine.Observer
		if verbose {
			observer = printEvent
		}
		eng := newEngine(st, newClient(), observer)

		fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), cfg.Server.URL)
		res, err := eng.Sync(ctx)
		if err != nil {
			printSyncFailure(err)
			_ = logger.Sync()
			os.Exit(1)
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), res.Duration.Round(time.Millisecond))
		fmt.Printf("   Pulled: %d\n", res.Pulled)
		fmt.Printf("   Pushed: %d\n", res.Pushed)
		fmt.Printf("   Merged: %d\n", res.Merged)
		if res.AuthRequired {
			fmt.Printf("\n%s The server refused our credentials; %d article(s) kept pending.\n",
				ui.RenderWarn("⚠"), len(res.Failures))
			fmt.Printf("   Set server.token (or QUILL_SERVER_TOKEN) and sync again.\n")
			return
		}
		if len(res.Failures) > 0 {
			fmt.Printf("\n%s %d article(s) still pending:\n", ui.RenderWarn("⚠"), len(res.Failures))
			for _, f := range res.Failures {
				fmt.Printf("   %s  %v\n", shortID(f.LocalID), f.Err)
			}
		}
	},
}

func printSyncFailure(err error) {
	var httpFault *remote.HTTPFault
	switch {
	case errors.Is(err, engine.ErrOffline):
		fmt.Fprintf(os.Stderr, "%s Offline: the sync server is unreachable. Articles stay pending.\n", ui.RenderWarn("⚠"))
	case errors.Is(err, engine.ErrSyncInProgress):
		fmt.Fprintf(os.Stderr, "%s A sync pass is already running.\n", ui.RenderWarn("⚠"))
	case engine.IsStorageFault(err):
		fmt.Fprintf(os.Stderr, "%s Local store error: %v\n", ui.RenderFail("✗"), err)
	case errors.As(err, &httpFault):
		fmt.Fprintf(os.Stderr, "%s Server answered %d: %v\n", ui.RenderFail("✗"), httpFault.Status, err)
	default:
		fmt.Fprintf(os.Stderr, "%s Sync failed: %v\n", ui.RenderFail("✗"), err)
	}
}

func printEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventState:
		fmt.Printf("   %s %s\n", ui.RenderMuted("→"), ev.State)
	case engine.EventPushed:
		fmt.Printf("   %s pushed %s as #%d\n", ui.RenderPass("↑"), shortID(ev.LocalID), ev.ServerID)
	case engine.EventPushFailed:
		fmt.Printf("   %s %s: %v\n", ui.RenderWarn("!"), shortID(ev.LocalID), ev.Err)
	case engine.EventMerged:
		fmt.Printf("   %s merged #%d\n", ui.RenderAccent("↓"), ev.ServerID)
	}
}

func init() {
	syncCmd.Flags().BoolP("verbose", "v", false, "print each step of the pass")

	rootCmd.AddCommand(syncCmd)
}
