package browser

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/chatsweep/internal/browser/browsertest"
	"github.com/Zuo-Peng/chatsweep/internal/credential"
	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

func TestCallEncodesArgs(t *testing.T) {
	got := Call("function f(a, b, c) {}", "x\"y", []string{"k"}, nil)
	assert.Equal(t, `(function f(a, b, c) {})("x\"y",["k"],null)`, got)
	assert.True(t, strings.HasPrefix(Wrap("1"), "(async()=>JSON.stringify((await (1))"))
}

func TestDecode(t *testing.T) {
	var v map[string]int
	require.NoError(t, Decode(`{"a":1}`, &v))
	assert.Equal(t, 1, v["a"])
	require.NoError(t, Decode("", &v))
	assert.Error(t, Decode("{", &v))
}

func TestOnOrigin(t *testing.T) {
	assert.True(t, OnOrigin("https://chatgpt.com/c/abc", ChatHosts...))
	assert.True(t, OnOrigin("https://chat.openai.com/", ChatHosts...))
	assert.True(t, OnOrigin("https://www.chatgpt.com/", ChatHosts...))
	assert.False(t, OnOrigin("https://notchatgpt.com/", ChatHosts...))
	assert.False(t, OnOrigin("about:blank", ChatHosts...))
	assert.True(t, Viewing("https://chatgpt.com/c/abc?x=1", "abc"))
	assert.False(t, Viewing("https://chatgpt.com/", "abc"))
}

func TestStateReadsStorageAndGlobals(t *testing.T) {
	p := browsertest.New("https://chatgpt.com/")
	p.Returns("storageItems", map[string]string{"token": "t1"})
	p.Returns("stringifyGlobals", map[string]string{"user": `{"a":1}`})
	p.CookieJar = []credential.Cookie{{Name: "c", Value: "v"}}

	s := State{Page: p}
	items, err := s.StorageItems(context.Background(), credential.LocalStorage, []string{"token"})
	require.NoError(t, err)
	assert.Equal(t, "t1", items["token"])
	assert.Contains(t, p.Evals[0], `"localStorage",["token"]`)

	g, err := s.Globals(context.Background(), []string{"user"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, g["user"])

	c, err := s.Cookies(context.Background())
	require.NoError(t, err)
	assert.Len(t, c, 1)
}

func TestFetchDoer(t *testing.T) {
	p := browsertest.New("https://chatgpt.com/")
	p.Handle("pageFetch", func(expr string) (any, error) {
		return map[string]any{
			"status":  200,
			"headers": map[string]string{"content-type": "image/png"},
			"body":    "iVBORw==",
		}, nil
	})

	req := transport.NewRequest(http.MethodPatch, "https://chatgpt.com/x", []byte(`{"is_visible":false}`))
	req.Header.Set("Authorization", "Bearer t")
	resp, err := FetchDoer{Page: p}.Do(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, resp.Body)
	assert.Contains(t, p.Evals[0], `"PATCH"`)
	assert.Contains(t, p.Evals[0], `"Authorization":"Bearer t"`)
}
