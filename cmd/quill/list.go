package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/quillpress/quill/internal/article"
	"github.com/quillpress/quill/internal/engine"
	"github.com/quillpress/quill/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "articles",
	Short:   "List local articles, newest first",
	Long: `List the articles in the local store, newest first.

Pending articles (not yet on the server) are marked with ○, confirmed ones
with ● and their server id.

--since accepts a date, an RFC 3339 timestamp or plain English such as
"yesterday" or "3 days ago".

Examples:
  quill list
  quill list --pending
  quill list --since "last week" --json`,
	Run: func(cmd *cobra.Command, args []string) {
		sinceArg, _ := cmd.Flags().GetString("since")
		pendingOnly, _ := cmd.Flags().GetBool("pending")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		now := time.Now()
		var since time.Time
		if sinceArg != "" {
			t, err := parseSince(sinceArg, now)
			if err != nil {
				fatal("%v", err)
			}
			since = t
		}

		ctx, cancel := signalContext()
		defer cancel()

		st := openStore(ctx)
		defer st.Close()

		var (
			articles []*article.Article
			err      error
		)
		if pendingOnly {
			articles, err = st.Pending(ctx)
		} else {
			articles, err = st.List(ctx)
		}
		if err != nil {
			fatal("failed to list articles: %v", err)
		}

		articles = filterSince(articles, since)
		engine.SortNewestFirst(articles)
		if limit > 0 && len(articles) > limit {
			articles = articles[:limit]
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(articles); err != nil {
				fatal("failed to encode articles: %v", err)
			}
			return
		}

		if len(articles) == 0 {
			fmt.Println(ui.RenderMuted("No articles."))
			return
		}

		titleWidth := ui.Width() - 32
		if titleWidth < 20 {
			titleWidth = 20
		}
		for _, a := range articles {
			marker, serverID := ui.RenderWarn("○"), "pending"
			if !a.IsPending() {
				marker, serverID = ui.RenderPass("●"), fmt.Sprintf("#%d", *a.ServerID)
			}
			fmt.Printf("%s %-8s %-8s %-9s %s\n",
				marker,
				shortID(a.LocalID),
				serverID,
				ui.RelativeTime(a.CreatedAt, now),
				ui.Truncate(a.Title, titleWidth),
			)
		}
	},
}

// parseSince accepts an absolute timestamp or a natural-language phrase.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, ok := article.ParseTimestamp(s); ok {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: not a date or time", s)
	}
	return r.Time, nil
}

func filterSince(articles []*article.Article, since time.Time) []*article.Article {
	if since.IsZero() {
		return articles
	}
	out := articles[:0]
	for _, a := range articles {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	listCmd.Flags().String("since", "", "only articles created at or after this time")
	listCmd.Flags().Bool("pending", false, "only articles not yet on the server")
	listCmd.Flags().IntP("limit", "n", 0, "show at most n articles")
	listCmd.Flags().Bool("json", false, "print JSON")

	rootCmd.AddCommand(listCmd)
}
