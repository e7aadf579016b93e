package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func listCmd(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the conversations in the chat sidebar",
		Long: `List the conversations the chat sidebar shows. Output is TSV:
  id, title`,
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

			r := s.client.List(ctx)
			if !r.OK() {
				return r.Failure
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(r.Value)
			}
			if len(r.Value) == 0 {
				fmt.Fprintln(os.Stderr, "No conversations found.")
				return nil
			}
			for _, c := range r.Value {
				fmt.Printf("%s\t%s\n", c.ID, oneLine(c.Title))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of TSV")
	return cmd
}
