package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillpress/quill/internal/exchange"
	"github.com/quillpress/quill/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "advanced",
	Short:   "Export local articles as JSONL",
	Long: `Write every local article as one JSON object per line, oldest first.

Without a file argument the export goes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		st := openStore(ctx)
		defer st.Close()

		if len(args) == 0 {
			if _, err := exchange.Export(ctx, st, os.Stdout); err != nil {
				fatal("%v", err)
			}
			return
		}

		n, err := exchange.ExportFile(ctx, st, args[0])
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Exported %d article(s) to %s\n", ui.RenderPass("✓"), n, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "advanced",
	Short:   "Import articles from a JSONL export",
	Long: `Read a JSONL export into the local store.

Confirmed articles are matched by server id and pending ones by local id;
anything already present is skipped, so importing twice is harmless.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")

		ctx, cancel := signalContext()
		defer cancel()

		st := openStore(ctx)
		defer st.Close()

		res, err := exchange.ImportFile(ctx, st, args[0], exchange.ImportOptions{DryRun: dryRun, Backup: backup})
		if err != nil {
			fatal("%v", err)
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d pending and %d confirmed article(s), skipped %d\n",
			ui.RenderPass("✓"), verb, res.Pending, res.Confirmed, res.Skipped)
		if res.BackupCreated != "" {
			fmt.Printf("   Backup: %s\n", res.BackupCreated)
		}
		if len(res.Errors) > 0 {
			fmt.Printf("\n%s %d invalid article(s) ignored:\n", ui.RenderWarn("⚠"), len(res.Errors))
			for _, e := range res.Errors {
				fmt.Printf("   %s\n", e)
			}
		}
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "validate without writing")
	importCmd.Flags().Bool("backup", false, "copy the input file before importing")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
