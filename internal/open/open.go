package open

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/Zuo-Peng/chatsweep/internal/index"
)

// OpenConversation opens an indexed conversation's chat URL in the
// system browser.
func OpenConversation(db *index.DB, convKey string) error {
	conv, err := db.GetConversationByKey(convKey)
	if err != nil {
		return fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return fmt.Errorf("conversation not found: %s", convKey)
	}
	if conv.BaseURL == "" {
		return fmt.Errorf("conversation %s has no base url", conv.ConversationID)
	}
	return OpenURL(conv.URL())
}

// OpenURL hands url to the platform opener, or to $BROWSER when set.
func OpenURL(url string) error {
	cmd := opener(runtime.GOOS, os.Getenv("BROWSER"), url)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %s: %w", url, err)
	}
	return cmd.Process.Release()
}

func opener(goos, browser, url string) *exec.Cmd {
	if browser != "" {
		return exec.Command(browser, url)
	}
	switch goos {
	case "darwin":
		return exec.Command("open", url)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return exec.Command("xdg-open", url)
	}
}
