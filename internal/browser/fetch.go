package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

// fetchJS runs fetch inside the tab with the page's cookies and origin. The
// response body comes back base64 encoded so binary payloads survive JSON.
const fetchJS = `async function pageFetch(url, method, headers, body) {
	const init = { method, headers, credentials: 'include' };
	if (body !== null) init.body = body;
	const r = await fetch(url, init);
	const bytes = new Uint8Array(await r.arrayBuffer());
	let bin = '';
	for (let i = 0; i < bytes.length; i += 0x8000) {
		bin += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
	}
	const h = {};
	r.headers.forEach((v, k) => { h[k] = v; });
	return { status: r.status, headers: h, body: btoa(bin) };
}`

type fetchResult struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"body"`
}

// FetchDoer sends requests from inside the page.
type FetchDoer struct {
	Page Page
}

func (d FetchDoer) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	headers := map[string]string{}
	for k, vs := range req.Header {
		headers[k] = strings.Join(vs, ", ")
	}
	var body any
	if req.Body != nil {
		body = string(req.Body)
	}

	var res fetchResult
	if err := d.Page.Eval(ctx, Call(fetchJS, req.URL, req.Method, headers, body), &res); err != nil {
		return nil, fmt.Errorf("page fetch %s: %w", req.URL, err)
	}

	h := make(http.Header, len(res.Headers))
	for k, v := range res.Headers {
		h.Set(k, v)
	}
	return &transport.Response{Status: res.Status, Header: h, Body: res.Body}, nil
}
