package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/quillpress/quill/internal/article"
	"github.com/quillpress/quill/internal/engine"
	"github.com/quillpress/quill/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add",
	GroupID: "articles",
	Short:   "Write a new article",
	Long: `Save a new article to the local store.

The article is saved as pending whether or not the device is online. When
sync.on_create is set and the server is reachable, a sync pass runs right
away and pushes it.

Without --title and --body, an interactive form is shown on a terminal.
Use --body - to read the body from stdin.

Examples:
  quill add --title "Field notes" --body "Rain all day."
  quill add --title "Draft" --body - < draft.md
  quill add --no-sync`,
	Run: func(cmd *cobra.Command, args []string) {
		title, _ := cmd.Flags().GetString("title")
		body, _ := cmd.Flags().GetString("body")
		noSync, _ := cmd.Flags().GetBool("no-sync")

		if body == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fatal("failed to read body from stdin: %v", err)
			}
			body = string(data)
		}

		if strings.TrimSpace(title) == "" || strings.TrimSpace(body) == "" {
			if !ui.IsInteractive() {
				fatal("--title and --body are required when not running in a terminal")
			}
			if err := promptArticle(&title, &body); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Println("Cancelled.")
					return
				}
				fatal("%v", err)
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		st := openStore(ctx)
		defer st.Close()

		if noSync || cfg.Server.URL == "" {
			draft, err := article.NewDraft(title, body, time.Now())
			if err != nil {
				fatal("%v", err)
			}
			localID, err := st.Put(ctx, draft)
			if err != nil {
				fatal("failed to save article: %v", err)
			}
			fmt.Printf("%s Saved %s (pending)\n", ui.RenderPass("✓"), localID)
			return
		}

		eng := newEngine(st, newClient(), nil)
		localID, res, err := eng.Create(ctx, title, body)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("%s Saved %s\n", ui.RenderPass("✓"), localID)
		printCreateOutcome(res)
	},
}

func printCreateOutcome(res *engine.Result) {
	switch {
	case res == nil:
		fmt.Printf("   %s\n", ui.RenderMuted("offline or sync on create disabled; it will be pushed on the next sync"))
	case !res.OK:
		fmt.Printf("   %s sync failed: %v\n", ui.RenderWarn("⚠"), res.Err)
	case res.AuthRequired:
		fmt.Printf("   %s server requires authentication; article kept pending\n", ui.RenderWarn("⚠"))
	case len(res.Failures) > 0:
		fmt.Printf("   %s pushed %d, %d still pending\n", ui.RenderWarn("⚠"), res.Pushed, len(res.Failures))
	default:
		fmt.Printf("   %s synced (pushed %d, merged %d)\n", ui.RenderPass("✓"), res.Pushed, res.Merged)
	}
}

func promptArticle(title, body *string) error {
	required := func(field string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", field)
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				CharLimit(article.MaxTitleLength).
				Value(title).
				Validate(required("title")),
			huh.NewText().
				Title("Body").
				Value(body).
				Validate(required("body")),
		),
	)
	return form.Run()
}

func init() {
	addCmd.Flags().StringP("title", "t", "", "article title")
	addCmd.Flags().StringP("body", "b", "", "article body (- reads stdin)")
	addCmd.Flags().Bool("no-sync", false, "save without attempting a sync")

	rootCmd.AddCommand(addCmd)
}
