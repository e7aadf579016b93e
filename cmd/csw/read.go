package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func readCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Print one conversation's canonical record as JSON",
		Args:  cobra.ExactArgs(1),
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

			r := s.client.ReadContent(ctx, args[0])
			if !r.OK() {
				return r.Failure
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(r.Value)
		},
	}
}
