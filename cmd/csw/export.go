package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chatsweep/internal/bulk"
	"github.com/Zuo-Peng/chatsweep/internal/index"
)

var phaseVerb = map[bulk.Phase]string{
	bulk.PhaseFetch:    "Fetched",
	bulk.PhaseDownload: "Downloaded attachments for",
	bulk.PhaseRender:   "Rendered",
}

func printProgress(u bulk.Update) {
	switch u.Phase {
	case bulk.PhaseZip:
		fmt.Fprintf(os.Stderr, "[%3d%%] Creating archive...\n", u.Percent)
	case bulk.PhaseDone:
		fmt.Fprintf(os.Stderr, "[%3d%%] Done.\n", u.Percent)
	default:
		fmt.Fprintf(os.Stderr, "[%3d%%] %s %d of %d...\n", u.Percent, phaseVerb[u.Phase], u.Current, u.Total)
	}
}

func exportCmd(g *globals) *cobra.Command {
	var all, noIndex bool

	cmd := &cobra.Command{
		Use:   "export [id...]",
		Short: "Export conversations and their attachments into a zip archive",
		Long: `Export the given conversations into ChatGPT_Export_YYYY-MM-DD.zip under the
export directory: one HTML document per conversation, an attachments/ folder
and a manifest.json. The archive is indexed afterwards for 'csw search'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			s, err := openSession(ctx, cfg, g, printProgress)
			if err != nil {
				return err
			}
			defer s.Close()

			var ids []string
			if len(args) > 0 && !all {
				ids = args
			} else {
				listed := s.client.List(ctx)
				if !listed.OK() {
					return listed.Failure
				}
				ids, err = selectIDs("Export conversations", args, all, listed.Value)
				if err != nil {
					return err
				}
			}
			if len(ids) == 0 {
				fmt.Fprintln(os.Stderr, "Nothing selected.")
				return nil
			}

			rep, err := s.bulk.ExportBatch(ctx, ids, cfg.ExportDir)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Println(rep.ArchivePath)
			fmt.Fprintf(os.Stderr, "%d conversation(s), %d unreadable; %d attachment(s) downloaded, %d skipped.\n",
				rep.Conversations, rep.Unreadable, rep.Downloaded, rep.Skipped)

			if noIndex {
				return nil
			}
			db, err := index.OpenDB(cfg.DBPath)
			if err != nil {
				slog.Warn("archive not indexed", "err", err)
				return nil
			}
			defer db.Close()
			if _, err := index.IndexAll(db, cfg.ExportDir); err != nil {
				slog.Warn("archive not indexed", "err", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Export every listed conversation")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Do not index the archive afterwards")
	return cmd
}
