package credential

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

type Cookie struct {
	Name  string
	Value string
}

type StorageArea string

const (
	SessionStorage StorageArea = "sessionStorage"
	LocalStorage   StorageArea = "localStorage"
)

// PageState exposes the page's cookies, key-value stores and global state
// containers. Missing keys are simply absent from the returned maps.
type PageState interface {
	Cookies(ctx context.Context) ([]Cookie, error)
	StorageItems(ctx context.Context, area StorageArea, keys []string) (map[string]string, error)
	Globals(ctx context.Context, names []string) (map[string]string, error)
}

var (
	// priorityCookies are matched as case-insensitive substrings of cookie names.
	priorityCookies = []string{
		"__Secure-next-auth.session-token",
		"__Host-next-auth.session-token",
		"auth_token",
		"access_token",
		"bearer_token",
		"jwt",
		"token",
	}

	storageKeys = []string{
		"auth_token",
		"token",
		"session",
		"access_token",
		"_auth",
		"bearer",
		"__auth__",
		"openai_session",
		"jwt",
	}

	globalNames = []string{
		"__INITIAL_STATE__",
		"__data",
		"__NEXT_DATA__",
		"__NUXT__",
		"_user",
		"user",
		"auth",
		"token",
		"_auth",
	}

	bearerRe = regexp.MustCompile(`(?i)bearer\s+eyJ[a-zA-Z0-9_\-]+`)
	jwtRe    = regexp.MustCompile(`eyJ[a-zA-Z0-9_\-.]+`)
)

const (
	namedCookieMinLen = 50
	anyCookieMinLen   = 80
)

func decodeCookie(v string) string {
	if d, err := url.QueryUnescape(v); err == nil {
		return d
	}
	return v
}

// acceptNamedCookie: long and dotted, or JWT-shaped.
func acceptNamedCookie(v string) bool {
	return (len(v) > namedCookieMinLen && strings.Contains(v, ".")) || LooksLikeJWT(v)
}

// acceptAnyCookie is the last-resort heuristic over every cookie.
func acceptAnyCookie(v string) bool {
	if len(v) > anyCookieMinLen && strings.Contains(v, ".") {
		return true
	}
	return LooksLikeJWT(v) && len(v) > namedCookieMinLen
}

// namedCookieCandidates returns accepted cookie values in priority order.
func namedCookieCandidates(cookies []Cookie) []string {
	var out []string
	taken := make(map[string]bool)
	for _, p := range priorityCookies {
		lp := strings.ToLower(p)
		for _, c := range cookies {
			if c.Name == "" || c.Value == "" || taken[c.Name] {
				continue
			}
			if !strings.Contains(strings.ToLower(c.Name), lp) {
				continue
			}
			taken[c.Name] = true
			v := decodeCookie(c.Value)
			if acceptNamedCookie(v) {
				out = append(out, v)
			}
		}
	}
	return out
}

func anyCookieCandidates(cookies []Cookie) []string {
	var out []string
	for _, c := range cookies {
		if c.Name == "" || c.Value == "" {
			continue
		}
		v := decodeCookie(c.Value)
		if acceptAnyCookie(v) {
			out = append(out, v)
		}
	}
	return out
}

// globalCandidates pattern-matches a stringified global state container.
func globalCandidates(stringified string) []string {
	var out []string
	if m := bearerRe.FindString(stringified); m != "" {
		out = append(out, m)
	}
	for _, m := range jwtRe.FindAllString(stringified, -1) {
		if strings.Count(m, ".") == 2 {
			out = append(out, m)
		}
	}
	return out
}
