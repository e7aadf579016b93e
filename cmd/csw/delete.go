package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chatsweep/internal/index"
)

func deleteCmd(g *globals) *cobra.Command {
	var all, yes bool

	cmd := &cobra.Command{
		Use:   "delete [id...]",
		Short: "Delete conversations, through the backend or by driving the UI",
		Long: `Delete the given conversations. With no ids on a terminal, pick them from
the sidebar listing. Every outcome is recorded in the ledger (see 'csw history').`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			s, err := openSession(ctx, cfg, g, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			listed := s.client.List(ctx)
			if !listed.OK() {
				return listed.Failure
			}
			ids, err := selectIDs("Delete conversations", args, all, listed.Value)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(os.Stderr, "Nothing selected.")
				return nil
			}
			if !yes && !confirm(fmt.Sprintf("Delete %d conversation(s)?", len(ids))) {
				return fmt.Errorf("not confirmed (pass --yes to skip the prompt)")
			}

			rep := s.bulk.DeleteBatch(ctx, listed.Value, ids)

			names := titles(listed.Value)
			for _, o := range rep.Outcomes {
				if o.Err != nil {
					fmt.Printf("%s\t%s\t%v\n", o.ID, o.Via, o.Err)
				} else {
					fmt.Printf("%s\t%s\t%s\n", o.ID, o.Via, oneLine(names[o.ID]))
				}
			}
			fmt.Fprintf(os.Stderr, "%d of %d succeeded. %d conversation(s) remain.\n", rep.Succeeded, rep.Total, len(rep.Remaining))

			db, err := index.OpenDB(cfg.DBPath)
			if err != nil {
				slog.Warn("delete log not written", "err", err)
				return nil
			}
			defer db.Close()

			runID := uuid.NewString()
			now := time.Now()
			entries := make([]index.Deletion, len(rep.Outcomes))
			for i, o := range rep.Outcomes {
				entries[i] = index.Deletion{
					RunID:          runID,
					ConversationID: o.ID,
					Title:          names[o.ID],
					Via:            string(o.Via),
					DeletedAt:      now,
				}
				if o.Err != nil {
					entries[i].Error = o.Err.Error()
				}
			}
			if err := db.RecordDeletions(entries); err != nil {
				slog.Warn("delete log not written", "err", err)
			}
			if rep.Succeeded < rep.Total {
				return fmt.Errorf("%d delete(s) failed", rep.Total-rep.Succeeded)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every listed conversation")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
