package open

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/chatsweep/internal/index"
)

func TestOpener(t *testing.T) {
	const u = "https://chatgpt.com/c/c1"
	tests := []struct {
		goos, browser string
		want          []string
	}{
		{"linux", "", []string{"xdg-open", u}},
		{"darwin", "", []string{"open", u}},
		{"windows", "", []string{"rundll32", "url.dll,FileProtocolHandler", u}},
		{"linux", "firefox", []string{"firefox", u}},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.browser, func(t *testing.T) {
			assert.Equal(t, tt.want, opener(tt.goos, tt.browser, u).Args)
		})
	}
}

func TestOpenConversationMissing(t *testing.T) {
	db, err := index.OpenDB(filepath.Join(t.TempDir(), "csw.db"))
	require.NoError(t, err)
	defer db.Close()

	err = OpenConversation(db, "nope#c1")
	assert.ErrorContains(t, err, "conversation not found")
}
