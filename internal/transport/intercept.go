package transport

import (
	"context"
	"net/http"
	"strings"
)

type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "response"
	}
	return "request"
}

// Exchange is one observed request or response header set.
type Exchange struct {
	Direction Direction
	URL       string
	Header    http.Header
}

// Authorization returns the Authorization header value, matched case-insensitively.
func (e Exchange) Authorization() string {
	if v := e.Header.Get("Authorization"); v != "" {
		return v
	}
	for k, vs := range e.Header {
		if len(vs) > 0 && strings.EqualFold(k, "authorization") {
			return vs[0]
		}
	}
	return ""
}

type Observer func(Exchange)

// Intercept wraps next so every request header set and every response header
// set passes through obs. Requests are forwarded unmodified.
func Intercept(next Doer, obs Observer) Doer {
	return DoerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if obs != nil {
			obs(Exchange{Direction: Outbound, URL: req.URL, Header: req.Header.Clone()})
		}
		resp, err := next.Do(ctx, req)
		if err == nil && resp != nil && obs != nil {
			obs(Exchange{Direction: Inbound, URL: req.URL, Header: resp.Header.Clone()})
		}
		return resp, err
	})
}
