package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chatsweep/internal/config"
	"github.com/Zuo-Peng/chatsweep/internal/credential"
	"github.com/Zuo-Peng/chatsweep/internal/index"
	"github.com/Zuo-Peng/chatsweep/internal/scan"
)

func doctorCmd(g *globals) *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify paths, DB, FTS5, and optionally the live credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}

			fmt.Println("=== Config ===")
			fmt.Printf("  Base URL:  %s\n", cfg.BaseURL)
			fmt.Printf("  Driver:    %s (transport %s)\n", cfg.Driver, cfg.Transport)
			checkDir("Profile", cfg.ProfileDir)
			checkDir("Exports", cfg.ExportDir)

			fmt.Println("\n=== Exports ===")
			files, err := scan.ScanExports(cfg.ExportDir)
			if err != nil {
				fmt.Printf("  scan error: %v\n", err)
			} else {
				fmt.Printf("  Archives on disk: %d\n", len(files))
			}

			if err := checkDB(cfg); err != nil {
				return err
			}

			if live {
				return checkLive(cmd, cfg, g)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Open the chat tab and report the harvested credential")
	return cmd
}

func checkDB(cfg *config.Config) error {
	fmt.Println("\n=== Database ===")
	fmt.Printf("  Path: %s\n", cfg.DBPath)
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		fmt.Println("  Status: NOT FOUND (run 'csw index' first)")
		return nil
	}

	db, err := index.OpenDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	archives, err := db.ArchiveCount()
	if err != nil {
		return fmt.Errorf("count archives: %w", err)
	}
	convs, err := db.ConversationCount()
	if err != nil {
		return fmt.Errorf("count conversations: %w", err)
	}
	msgs, err := db.MessageCount()
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	fmt.Printf("  Archives:      %d\n", archives)
	fmt.Printf("  Conversations: %d\n", convs)
	fmt.Printf("  Messages:      %d\n", msgs)

	fmt.Println("\n=== FTS5 ===")
	var ftsCount int
	err = db.Raw().QueryRow("SELECT COUNT(*) FROM messages_fts").Scan(&ftsCount)
	if err != nil {
		fmt.Printf("  FTS5 error: %v\n", err)
	} else {
		fmt.Printf("  FTS5 entries: %d\n", ftsCount)
		if ftsCount == msgs {
			fmt.Println("  Status: OK (synced)")
		} else {
			fmt.Printf("  Status: MISMATCH (messages=%d, fts=%d)\n", msgs, ftsCount)
		}
	}

	if info, err := os.Stat(cfg.DBPath); err == nil {
		sizeMB := float64(info.Size()) / 1024 / 1024
		fmt.Printf("\n=== DB Size: %.1f MB ===\n", sizeMB)
	}
	return nil
}

func checkLive(cmd *cobra.Command, cfg *config.Config, g *globals) error {
	fmt.Println("\n=== Credential ===")
	if g.hostCmd != "" {
		fmt.Println("  Skipped: the tab lives in the host process")
		return nil
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := openSession(ctx, cfg, g, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	s.harvest.Nudge(ctx)
	token, ok := s.harvest.Store().Current()
	if !ok {
		fmt.Println("  Status: NONE (run 'csw login' and sign in)")
		return nil
	}

	fmt.Printf("  Token: %s\n", credential.Preview(token, 12))
	info := credential.Inspect(token)
	if !info.JWT {
		fmt.Println("  Format: opaque")
		return nil
	}
	fmt.Println("  Format: JWT")
	if info.Subject != "" {
		fmt.Printf("  Subject: %s\n", info.Subject)
	}
	if !info.ExpiresAt.IsZero() {
		state := "valid"
		if time.Now().After(info.ExpiresAt) {
			state = "EXPIRED"
		}
		fmt.Printf("  Expires: %s (%s)\n", info.ExpiresAt.Local().Format(time.RFC3339), state)
	}
	return nil
}

func checkDir(name, path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s (NOT FOUND)\n", name, path)
	} else if !info.IsDir() {
		fmt.Printf("  %s: %s (NOT A DIRECTORY)\n", name, path)
	} else {
		fmt.Printf("  %s: %s (OK)\n", name, path)
	}
}
