package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chatsweep/internal/config"
)

var version = "dev"

// globals are the persistent flags shared by every command.
type globals struct {
	verbose  bool
	logJSON  bool
	headless bool
	driver   string
	profile  string
	out      string
	hostCmd  string
}

func main() {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:     "csw",
		Short:   "chatsweep - bulk delete and export ChatGPT conversations",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(newLogger(g))
		},
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Debug logging")
	pf.BoolVar(&g.logJSON, "log-json", false, "Log as JSON")
	pf.BoolVar(&g.headless, "headless", true, "Run the browser without a window")
	pf.StringVar(&g.driver, "driver", "", "Browser driver (chromedp/rod)")
	pf.StringVar(&g.profile, "profile", "", "Browser profile directory")
	pf.StringVar(&g.out, "out", "", "Directory export archives are written to")
	pf.StringVar(&g.hostCmd, "host-cmd", "", "Drive a host process speaking the framed channel on its stdio (e.g. 'csw serve')")

	rootCmd.AddCommand(loginCmd(g))
	rootCmd.AddCommand(listCmd(g))
	rootCmd.AddCommand(deleteCmd(g))
	rootCmd.AddCommand(exportCmd(g))
	rootCmd.AddCommand(readCmd(g))
	rootCmd.AddCommand(serveCmd(g))
	rootCmd.AddCommand(indexCmd(g))
	rootCmd.AddCommand(searchCmd(g))
	rootCmd.AddCommand(previewCmd(g))
	rootCmd.AddCommand(openCmd(g))
	rootCmd.AddCommand(historyCmd(g))
	rootCmd.AddCommand(doctorCmd(g))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(g *globals) *slog.Logger {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if g.logJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// loadConfig reads the config file and applies flags the user set.
func loadConfig(cmd *cobra.Command, g *globals) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("headless") {
		cfg.Headless = g.headless
	}
	if g.driver != "" {
		cfg.Driver = g.driver
	}
	if g.profile != "" {
		cfg.ProfileDir = g.profile
	}
	if g.out != "" {
		cfg.ExportDir = g.out
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
