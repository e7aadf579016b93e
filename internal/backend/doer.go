package backend

import (
	"fmt"
	"net/http"

	"github.com/Zuo-Peng/chatsweep/internal/credential"
	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

// NewHTTPDoer returns a net/http Doer whose jar holds the browser's cookies
// for baseURL.
func NewHTTPDoer(baseURL string, cookies []credential.Cookie) (transport.Doer, error) {
	hc := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc = append(hc, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar, err := transport.NewJar(baseURL, hc)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return transport.NewHTTPDoer(&http.Client{Jar: jar}), nil
}
