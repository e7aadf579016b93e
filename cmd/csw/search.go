package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/chatsweep/internal/index"
	"github.com/Zuo-Peng/chatsweep/internal/search"
	"github.com/Zuo-Peng/chatsweep/internal/tui"
)

const (
	sColorReset   = "\033[0m"
	sColorBoldRed = "\033[1;31m"
	sColorBlue    = "\033[1;34m"
	sColorGreen   = "\033[1;32m"
	sColorDim     = "\033[2m"
)

func colorizeRole(role string) string {
	switch role {
	case "user":
		return sColorBlue + role + sColorReset
	case "assistant":
		return sColorGreen + role + sColorReset
	default:
		return role
	}
}

func colorizeSnippet(snippet string) string {
	snippet = strings.ReplaceAll(snippet, ">>>", sColorBoldRed)
	snippet = strings.ReplaceAll(snippet, "<<<", sColorReset)
	return snippet
}

func searchCmd(g *globals) *cobra.Command {
	var role, since string
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Full-text search across exported conversations",
		Long: `Search exported conversations using FTS5. With no query on a terminal, browse
every indexed conversation. Output is TSV for fzf integration:
  convKey, msgId, exportedAt, role, title, snippet

Recommended shell function (add to .zshrc):
  cswf() {
    csw search "$*" | fzf \
      --ansi \
      --delimiter='\t' --with-nth=3.. \
      --preview 'csw preview {1} --hit {2} --context 5 --query {q}' \
      --preview-window=right:60%:wrap \
      --preview-debounce=150 \
      --bind 'enter:execute(csw open {1})'
  }`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}

			db, err := index.OpenDB(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			// pick up archives exported since the last run
			index.IndexAll(db, cfg.ExportDir)

			opts := search.Options{
				Role:  role,
				Since: since,
				Limit: limit,
			}

			// Interactive TUI when stdout is a terminal; TSV output for pipes
			if term.IsTerminal(int(os.Stdout.Fd())) {
				if len(args) == 0 {
					return tui.RunList(db, opts)
				}
				return tui.Run(db, args[0], opts)
			}
			if len(args) == 0 {
				return fmt.Errorf("a query is required when output is not a terminal")
			}

			opts.Query = args[0]
			results, err := search.Search(db, opts)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Fprintln(os.Stderr, "No results found.")
				return nil
			}

			for _, r := range results {
				// first two fields (convKey, msgID) stay plain for fzf {1} {2}
				fmt.Printf("%s\t%d\t%s%s%s\t%s\t%s\t%s\n",
					r.ConvKey,
					r.MsgID,
					sColorDim, r.ExportedAt, sColorReset,
					colorizeRole(r.Role),
					oneLine(r.Title),
					colorizeSnippet(oneLine(r.Snippet)),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Filter by role (user/assistant/system/unknown/error)")
	cmd.Flags().StringVar(&since, "since", "", "Only archives exported since date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")

	return cmd
}
