package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chatsweep/internal/channel"
)

func serveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer channel requests on stdin/stdout",
		Long: `Drive the chat tab on behalf of another process. Requests and responses are
JSON frames, each preceded by its length as a 4-byte little-endian integer.
Actions: listConversations, deleteConversation, readConversationContent,
downloadAttachment. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.hostCmd != "" {
				return fmt.Errorf("serve cannot be combined with --host-cmd")
			}
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

			slog.Info("serving channel on stdio")
			return channel.Serve(ctx, os.Stdin, os.Stdout, s.handler)
		},
	}
}
