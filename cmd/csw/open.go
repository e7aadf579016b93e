package main

import (
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chatsweep/internal/index"
	"github.com/Zuo-Peng/chatsweep/internal/open"
)

func openCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "open <convKey>",
		Short: "Open an exported conversation on the chat site",
		Args:  cobra.ExactArgs(1),
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

			return open.OpenConversation(db, args[0])
		},
	}
}
