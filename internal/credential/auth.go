package credential

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const Scheme = "Bearer"

// LooksLikeJWT reports whether s has the base64url JSON header prefix of a JWT.
func LooksLikeJWT(s string) bool {
	return strings.HasPrefix(s, "eyJ")
}

// Authorization returns the header value to send for token: JWT-shaped tokens
// without the scheme get "Bearer " prepended, anything else is sent as is.
func Authorization(token string) string {
	if !strings.Contains(token, Scheme) && LooksLikeJWT(token) {
		return Scheme + " " + token
	}
	return token
}

// Info describes a credential for diagnostics only. It is never used to
// decide whether a credential is still valid.
type Info struct {
	JWT       bool
	Subject   string
	Issuer    string
	ExpiresAt time.Time
}

// Inspect decodes the claims of a JWT-shaped credential without verifying it.
func Inspect(token string) Info {
	raw := strings.TrimSpace(token)
	if len(raw) > len(Scheme) && strings.EqualFold(raw[:len(Scheme)], Scheme) {
		raw = strings.TrimSpace(raw[len(Scheme):])
	}
	if !LooksLikeJWT(raw) {
		return Info{}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Info{}
	}

	info := Info{JWT: true}
	info.Subject, _ = claims.GetSubject()
	info.Issuer, _ = claims.GetIssuer()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info
}
