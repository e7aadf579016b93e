package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

// ProbePaths are fetched when no strategy finds a credential, so the page's
// own authorized traffic passes through interception.
var ProbePaths = []string{
	"/backend-api/accounts/check",
	"/backend-api/conversations",
	"/api/user",
}

// Endpoints is the part of the backend the harvester talks to.
type Endpoints interface {
	// SessionToken queries the session-info endpoint and returns its
	// credential field, or "" when the response carries none.
	SessionToken(ctx context.Context) (string, error)
	Probe(ctx context.Context, path string) error
}

type Schedule struct {
	Retry      []time.Duration // offsets after Start
	ProbeAfter time.Duration
}

type Harvester struct {
	store    *Store
	state    PageState
	api      Endpoints
	schedule Schedule
	log      *slog.Logger

	probing sync.Mutex
}

func NewHarvester(store *Store, state PageState, api Endpoints, schedule Schedule, log *slog.Logger) *Harvester {
	if log == nil {
		log = slog.Default()
	}
	return &Harvester{
		store:    store,
		state:    state,
		api:      api,
		schedule: schedule,
		log:      log.With("component", "harvester"),
	}
}

func (h *Harvester) Store() *Store { return h.store }

// Observe is the passive interception hook. Every Authorization header value
// seen on a request or response is offered to the store.
func (h *Harvester) Observe(e transport.Exchange) {
	auth := e.Authorization()
	if auth == "" {
		return
	}
	if h.store.TryCapture(auth) {
		h.log.Info("credential captured", "source", "intercept", "direction", e.Direction.String(), "token", Preview(auth, 12))
	}
}

// Start runs the active strategies now and at every retry offset. It returns
// a channel closed once the schedule has finished or ctx is done.
func (h *Harvester) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Nudge(ctx)
		var elapsed time.Duration
		for _, at := range h.schedule.Retry {
			wait := at - elapsed
			elapsed = at
			if wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
			h.Nudge(ctx)
		}
	}()
	return done
}

// Nudge re-runs the session query, storage scan and global scan. It is a
// no-op while a credential is active. When nothing is found the probe
// endpoints are hit after the configured delay.
func (h *Harvester) Nudge(ctx context.Context) {
	if _, ok := h.store.Current(); ok {
		return
	}
	r := chain.Run(ctx, h.log,
		chain.Step[string]{Name: "session", Run: h.SessionQuery},
		chain.Step[string]{Name: "storage", Run: h.StorageScan},
		chain.Step[string]{Name: "globals", Run: h.GlobalScan},
	)
	if r.OK() {
		h.log.Info("credential captured", "token", Preview(r.Value, 12))
		return
	}
	h.probe(ctx)
}

func (h *Harvester) probe(ctx context.Context) {
	if h.api == nil {
		return
	}
	// one probe round at a time; concurrent nudges just skip
	if !h.probing.TryLock() {
		return
	}
	defer h.probing.Unlock()

	if h.schedule.ProbeAfter > 0 {
		t := time.NewTimer(h.schedule.ProbeAfter)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	if _, ok := h.store.Current(); ok {
		return
	}
	for _, p := range ProbePaths {
		if err := h.api.Probe(ctx, p); err != nil {
			h.log.Debug("probe failed", "path", p, "error", err)
		}
	}
}

// SessionQuery asks the session-info endpoint for a credential.
func (h *Harvester) SessionQuery(ctx context.Context) chain.Result[string] {
	if h.api == nil {
		return chain.Err[string](chain.Failf(chain.CredentialUnavailable, "no session endpoint"))
	}
	tok, err := h.api.SessionToken(ctx)
	if err != nil {
		return chain.Err[string](chain.Fail(chain.CredentialUnavailable, fmt.Errorf("session query: %w", err)))
	}
	return h.offer("session", []string{tok})
}

// StorageScan looks at cookies with known names, then the short-lived and
// long-lived key-value stores, and finally any cookie that looks like a token.
func (h *Harvester) StorageScan(ctx context.Context) chain.Result[string] {
	if h.state == nil {
		return chain.Err[string](chain.Failf(chain.CredentialUnavailable, "no page state"))
	}

	cookies, err := h.state.Cookies(ctx)
	if err != nil {
		h.log.Debug("cookie read failed", "error", err)
	}
	if r := h.offer("cookie", namedCookieCandidates(cookies)); r.OK() {
		return r
	}

	for _, area := range []StorageArea{SessionStorage, LocalStorage} {
		items, err := h.state.StorageItems(ctx, area, storageKeys)
		if err != nil {
			h.log.Debug("storage read failed", "area", area, "error", err)
			continue
		}
		var cands []string
		for _, k := range storageKeys {
			if v, ok := items[k]; ok && v != "" {
				cands = append(cands, v)
			}
		}
		if r := h.offer(string(area), cands); r.OK() {
			return r
		}
	}

	return h.offer("cookie-any", anyCookieCandidates(cookies))
}

// GlobalScan pattern-matches the stringified global state containers.
func (h *Harvester) GlobalScan(ctx context.Context) chain.Result[string] {
	if h.state == nil {
		return chain.Err[string](chain.Failf(chain.CredentialUnavailable, "no page state"))
	}
	globals, err := h.state.Globals(ctx, globalNames)
	if err != nil {
		return chain.Err[string](chain.Fail(chain.CredentialUnavailable, fmt.Errorf("read globals: %w", err)))
	}
	for _, name := range globalNames {
		s, ok := globals[name]
		if !ok || s == "" {
			continue
		}
		if r := h.offer("global:"+name, globalCandidates(s)); r.OK() {
			return r
		}
	}
	return chain.Err[string](chain.Failf(chain.CredentialUnavailable, "no credential in globals"))
}

// offer captures the first new candidate.
func (h *Harvester) offer(source string, candidates []string) chain.Result[string] {
	for _, c := range candidates {
		if h.store.TryCapture(c) {
			h.log.Debug("candidate accepted", "source", source)
			tok, _ := h.store.Current()
			return chain.Ok(tok)
		}
	}
	return chain.Err[string](chain.Failf(chain.CredentialUnavailable, "no new credential from %s", source))
}
