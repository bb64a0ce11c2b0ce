package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillpress/quill/internal/config"
	"github.com/quillpress/quill/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Manage quill configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	Long: `Write the effective settings to a TOML config file.

Values given with --server and --token are included, so

  quill config init --server https://example.com/sync.php --token ...

sets up a device in one step.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		path := configFile
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.Write(path, cfg, force); err != nil {
			fatal("%v (use --force to overwrite)", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		out, err := cfg.YAML()
		if err != nil {
			fatal("%v", err)
		}
		if cfgUsed != "" {
			fmt.Printf("# from %s\n", cfgUsed)
		}
		_, _ = os.Stdout.Write(out)
	},
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
