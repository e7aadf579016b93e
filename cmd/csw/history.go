package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chatsweep/internal/index"
)

func historyCmd(g *globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent delete outcomes from the ledger",
		Long: `Show recent delete outcomes, newest first. Output is TSV:
  deletedAt, runId, id, via, title or error`,
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

			entries, err := db.Deletions(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(os.Stderr, "No deletions recorded.")
				return nil
			}
			for _, e := range entries {
				detail := e.Title
				if e.Error != "" {
					detail = e.Error
				}
				fmt.Printf("%s\t%s\t%s\t%s\t%s\n",
					e.DeletedAt.Local().Format("2006-01-02 15:04"), e.RunID, e.ConversationID, e.Via, oneLine(detail))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Max entries")
	return cmd
}
