package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillpress/quill/internal/remote"
	"github.com/quillpress/quill/internal/store"
	"github.com/quillpress/quill/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show store and server status",
	Long: `Display the local store and sync server status.

Shows:
  - Store location, size and schema version
  - Number of articles, pending and confirmed
  - Sync server, reachability and token expiry`,
	Run: func(cmd *cobra.Command, args []string) {
		info, err := os.Stat(cfg.DB)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s No article store yet\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'quill add' to write your first article\n\n")
			return
		}
		if err != nil {
			fatal("failed to check store: %v", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		st := openStore(ctx)
		defer st.Close()

		total, err := st.Count(ctx)
		if err != nil {
			fatal("failed to count articles: %v", err)
		}
		pending, err := st.CountPending(ctx)
		if err != nil {
			fatal("failed to count pending articles: %v", err)
		}
		version, _ := st.SchemaVersionContext(ctx)

		fmt.Printf("\n%s Quill Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Store: %s\n", cfg.DB)
		fmt.Printf("Size: %s\n", formatSize(info.Size()))
		fmt.Printf("Schema: v%d (this build: v%d)\n", version, store.SchemaVersion)
		fmt.Printf("Articles: %d\n", total)
		fmt.Printf("  Pending: %d\n", pending)
		fmt.Printf("  Confirmed: %d\n", total-pending)
		if cfgUsed != "" {
			fmt.Printf("Config: %s\n", cfgUsed)
		}

		fmt.Println()
		if cfg.Server.URL == "" {
			fmt.Printf("Server: %s\n\n", ui.RenderMuted("not configured"))
			return
		}
		fmt.Printf("Server: %s\n", cfg.Server.URL)
		fmt.Printf("Reachable: %s\n", reachability(ctx, newClient()))
		fmt.Printf("Token: %s\n", tokenStatus(cfg.Server.Token, time.Now()))
		fmt.Println()
	},
}

func reachability(ctx context.Context, client *remote.Client) string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return ui.RenderFail("no") + " " + ui.RenderMuted(err.Error())
	}
	return ui.RenderPass("yes")
}

func tokenStatus(token string, now time.Time) string {
	if token == "" {
		return ui.RenderMuted("none")
	}
	exp, ok := remote.TokenExpiry(token)
	if !ok {
		return "set"
	}
	if !exp.After(now) {
		return ui.RenderFail("expired " + exp.Local().Format("2006-01-02 15:04"))
	}
	return ui.RenderPass("valid until " + exp.Local().Format("2006-01-02 15:04"))
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
