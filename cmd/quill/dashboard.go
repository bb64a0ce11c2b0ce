package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillpress/quill/internal/dashboard"
	"github.com/quillpress/quill/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Run the sync daemon with a real-time WebSocket dashboard",
	Long: `Run the sync daemon and a WebSocket server that reports its activity.

WebSocket messages include:
- sync_state: the engine entered a new phase (pulling, pushing, merging, done, failed)
- article_update: an article was pushed, merged or left pending
- sync_complete: a pass finished, with counts and any error
- stats: article totals (sent on connect and after each pass)

Example usage:
  quill dashboard                   # Listen on dashboard.port (default 8080)
  quill dashboard --port 9000       # Listen on a custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		ctx, cancel := signalContext()
		defer cancel()

		st := openStore(ctx)
		defer st.Close()

		server := dashboard.NewServer(&dashboard.Config{
			Host:   cfg.Dashboard.Host,
			Port:   port,
			Logger: logger,
		})
		handler := dashboard.NewHandler(server, st, logger)

		eng := newEngine(st, newClient(), handler.Observe)
		d := newDaemon(eng, st.Path())

		if err := server.Start(); err != nil {
			fatal("failed to start dashboard: %v", err)
		}
		handler.RefreshStats(ctx)

		addr := server.GetAddr()
		fmt.Printf("%s Dashboard server started on http://%s\n", ui.RenderAccent("🚀"), addr)
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
		fmt.Printf("Health check: http://%s/health\n", addr)
		printDaemonInfo(st.Path())
		fmt.Println("\nPress Ctrl+C to stop...")

		daemonErr := d.Start(ctx)

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
		if daemonErr != nil {
			fatal("daemon stopped with error: %v", daemonErr)
		}
		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "port to listen on (default dashboard.port)")

	rootCmd.AddCommand(dashboardCmd)
}
