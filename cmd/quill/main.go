// Command quill captures articles offline and reconciles them with a sync
// server when a connection is available.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quillpress/quill/internal/config"
	"github.com/quillpress/quill/internal/logging"
)

var (
	cfg        *config.Config
	cfgUsed    string
	logger     = zap.NewNop()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Write articles anywhere, sync them when you are back online",
	Long: `quill keeps a local store of articles and reconciles it with a sync server.

Articles written while offline stay pending on this device. Each sync pass
pulls the server's records, pushes pending articles one at a time and merges
anything new from the server into the local store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, used, err := config.Load(config.Options{
			ConfigFile:   configFile,
			AllowMissing: cmd == configInitCmd,
			Flags:        cmd.Flags(),
		})
		if err != nil {
			return err
		}
		cfg, cfgUsed = loaded, used

		// Without a log file only warnings reach the terminal; command
		// output is the user-facing channel.
		level := cfg.Log.Level
		if cfg.Log.File == "" && !cmd.Flags().Changed("log-level") {
			level = "warn"
		}
		l, err := logging.New(logging.Options{Level: level, File: cfg.Log.File})
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "articles", Title: "Articles:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default ~/.quill/config.toml)")
	flags.String("db", "", "path of the local article store")
	flags.String("server", "", "sync endpoint URL")
	flags.String("token", "", "bearer token for the sync endpoint")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-file", "", "write logs to this file (rotated)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatal prints an error and exits.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	_ = logger.Sync()
	os.Exit(1)
}
