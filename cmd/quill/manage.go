package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/quillpress/quill/internal/ui"
)

var rmCmd = &cobra.Command{
	Use:     "rm <local-id>",
	GroupID: "articles",
	Short:   "Delete a local article",
	Long: `Delete an article from the local store by local id or a unique prefix.

Only the local copy is removed. A confirmed article comes back on the next
sync, since the server still holds it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		st := openStore(ctx)
		defer st.Close()

		all, err := st.List(ctx)
		if err != nil {
			fatal("failed to list articles: %v", err)
		}

		var matches []string
		for _, a := range all {
			if a.LocalID == args[0] {
				matches = []string{a.LocalID}
				break
			}
			if strings.HasPrefix(a.LocalID, args[0]) {
				matches = append(matches, a.LocalID)
			}
		}
		switch len(matches) {
		case 0:
			fatal("no article with id %s", args[0])
		case 1:
		default:
			fatal("id prefix %s is ambiguous (%d articles)", args[0], len(matches))
		}

		if err := st.Remove(ctx, matches[0]); err != nil {
			fatal("failed to delete article: %v", err)
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), matches[0])
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "advanced",
	Short:   "Delete every local article",
	Long: `Remove all articles from the local store.

Pending articles have not reached the server and are lost. Run
'quill export' first to keep a copy.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		ctx, cancel := signalContext()
		defer cancel()

		st := openStore(ctx)
		defer st.Close()

		pending, err := st.CountPending(ctx)
		if err != nil {
			fatal("failed to count pending articles: %v", err)
		}

		if !force {
			if !ui.IsInteractive() {
				fatal("refusing to reset without --force when not running in a terminal")
			}
			confirmed := false
			title := "Delete every local article?"
			if pending > 0 {
				title = fmt.Sprintf("Delete every local article, including %d never synced?", pending)
			}
			err := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().Title(title).Affirmative("Delete").Negative("Keep").Value(&confirmed),
			)).Run()
			if err != nil && !errors.Is(err, huh.ErrUserAborted) {
				fatal("%v", err)
			}
			if !confirmed {
				fmt.Println("Nothing deleted.")
				return
			}
		}

		if err := st.Clear(ctx); err != nil {
			fatal("failed to clear store: %v", err)
		}
		fmt.Printf("%s Local store cleared\n", ui.RenderPass("✓"))
	},
}

func init() {
	resetCmd.Flags().BoolP("force", "f", false, "do not ask for confirmation")

	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(resetCmd)
}
