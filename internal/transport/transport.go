// Package transport is the request/response abstraction shared by the
// in-page fetch bridge and the net/http client.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewRequest builds a request with an empty header set.
func NewRequest(method, url string, body []byte) *Request {
	return &Request{Method: method, URL: url, Header: make(http.Header), Body: body}
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Doer sends a request. Implementations must include ambient session
// credentials (cookies) the way a browser would with credentials: include.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

type DoerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f DoerFunc) Do(ctx context.Context, req *Request) (*Response, error) { return f(ctx, req) }

// HTTPDoer sends requests with a net/http client whose cookie jar carries the
// session cookies.
type HTTPDoer struct {
	client *http.Client
}

func NewHTTPDoer(client *http.Client) *HTTPDoer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDoer{client: client}
}

func (d *HTTPDoer) Do(ctx context.Context, r *Request) (*Response, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// NewJar returns a cookie jar holding cookies for baseURL.
func NewJar(baseURL string, cookies []*http.Cookie) (http.CookieJar, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	jar.SetCookies(u, cookies)
	return jar, nil
}
