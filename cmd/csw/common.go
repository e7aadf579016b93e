package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/chatsweep/internal/locate"
	"github.com/Zuo-Peng/chatsweep/internal/tui"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// selectIDs returns the ids named on the command line, every listed id with
// all, or the user's picks when running on a terminal.
func selectIDs(heading string, args []string, all bool, listed []locate.Summary) ([]string, error) {
	if all {
		ids := make([]string, len(listed))
		for i, s := range listed {
			ids[i] = s.ID
		}
		return ids, nil
	}
	if len(args) > 0 {
		return args, nil
	}
	if !interactive() {
		return nil, fmt.Errorf("no conversation ids given (pass ids, --all, or run on a terminal to pick)")
	}
	return tui.Pick(heading, listed)
}

func confirm(prompt string) bool {
	if !interactive() {
		return false
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func titles(listed []locate.Summary) map[string]string {
	out := make(map[string]string, len(listed))
	for _, s := range listed {
		out[s.ID] = s.Title
	}
	return out
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
