package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/chatsweep/internal/browser"
	"github.com/Zuo-Peng/chatsweep/internal/config"
)

func loginCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Open a visible browser on the profile so you can sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			page, err := openPage(ctx, cfg, browser.Options{
				ProfileDir: cfg.ProfileDir,
				Headless:   false,
				StartURL:   cfg.BaseURL,
			}, nil)
			if err != nil {
				return err
			}
			defer page.Close()
			page.WaitLoad(ctx, config.Ms(cfg.Timeouts.PageLoad))

			fmt.Fprintf(os.Stderr, "Sign in to %s in the browser window, then press Enter here.\n", cfg.BaseURL)
			done := make(chan struct{})
			go func() {
				bufio.NewReader(os.Stdin).ReadString('\n')
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
			}

			cookies, err := page.Cookies(ctx)
			if err == nil {
				fmt.Fprintf(os.Stderr, "Profile saved to %s (%d cookies).\n", cfg.ProfileDir, len(cookies))
			}
			return nil
		},
	}
}
