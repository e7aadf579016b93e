package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/Zuo-Peng/chatsweep/internal/action"
	"github.com/Zuo-Peng/chatsweep/internal/automate"
	"github.com/Zuo-Peng/chatsweep/internal/backend"
	"github.com/Zuo-Peng/chatsweep/internal/browser"
	"github.com/Zuo-Peng/chatsweep/internal/browser/cdpdriver"
	"github.com/Zuo-Peng/chatsweep/internal/browser/roddriver"
	"github.com/Zuo-Peng/chatsweep/internal/bulk"
	"github.com/Zuo-Peng/chatsweep/internal/channel"
	"github.com/Zuo-Peng/chatsweep/internal/config"
	"github.com/Zuo-Peng/chatsweep/internal/credential"
	"github.com/Zuo-Peng/chatsweep/internal/locate"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

// session is everything one command needs to act on the chat tab. When a
// host command is configured the tab lives in that process and page,
// harvest and handler are nil.
type session struct {
	cfg     *config.Config
	page    browser.Page
	harvest *credential.Harvester
	handler *channel.Handler
	client  *channel.Client
	bulk    *bulk.Orchestrator
	closers []func() error
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openSession starts a browser on the chat site, or a host process when
// g.hostCmd is set, and wires the components over it.
func openSession(ctx context.Context, cfg *config.Config, g *globals, progress bulk.Progress) (*session, error) {
	log := slog.Default()
	s := &session{cfg: cfg}

	bopts := bulk.Options{
		BaseURL:         cfg.BaseURL,
		ConversationURL: func(id string) string { return cfg.BaseURL + browser.ConversationPath(id) },
		PageLoad:        config.Ms(cfg.Timeouts.PageLoad),
		ScriptInit:      config.Ms(cfg.Delays.ScriptInit),
		Reload:          config.Ms(cfg.Delays.Reload),
		Progress:        progress,
	}

	if g.hostCmd != "" {
		stream, stop, err := startHost(g.hostCmd)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, stop)
		s.client = channel.NewClient(stream, config.Ms(cfg.Timeouts.Channel), log)
		s.bulk = bulk.New(s.client, nil, nil, bopts, log)
		return s, nil
	}

	page, err := openPage(ctx, cfg, browser.Options{
		ProfileDir: cfg.ProfileDir,
		Headless:   cfg.Headless,
		RemoteURL:  cfg.RemoteURL,
		StartURL:   cfg.BaseURL,
	}, log)
	if err != nil {
		return nil, err
	}
	s.page = page
	s.closers = append(s.closers, page.Close)
	if err := page.WaitLoad(ctx, config.Ms(cfg.Timeouts.PageLoad)); err != nil {
		s.Close()
		return nil, fmt.Errorf("load %s: %w", cfg.BaseURL, err)
	}

	doer, err := newDoer(ctx, cfg, page)
	if err != nil {
		s.Close()
		return nil, err
	}

	store := credential.NewStore()
	var harvest *credential.Harvester
	observe := func(e transport.Exchange) { harvest.Observe(e) }
	api := backend.New(cfg.BaseURL, transport.Intercept(doer, observe), store, config.Ms(cfg.Timeouts.API), log)
	harvest = credential.NewHarvester(store, browser.State{Page: page}, api, schedule(cfg), log)
	s.harvest = harvest

	stopObserve := page.Observe(harvest.Observe)
	s.closers = append(s.closers, func() error { stopObserve(); return nil })
	harvest.Start(ctx)

	loc := locate.New(page, api, locate.Config{
		Conversations: cfg.Selectors.Conversations,
		Trigger:       config.Ms(cfg.Delays.Trigger),
	}, log)
	deleter := automate.NewDeleter(page, automate.Settle{
		Scroll:       config.Ms(cfg.Delays.Scroll),
		Hover:        config.Ms(cfg.Delays.Hover),
		Menu:         config.Ms(cfg.Delays.Menu),
		Confirm:      config.Ms(cfg.Delays.Confirm),
		OptionsTries: cfg.Delays.OptionsTries,
		MaxClimb:     cfg.Delays.ClimbAncestor,
	}, log)
	executor := action.New(page, api, deleter, loc, harvest, action.Options{
		Hosts:    chatHosts(cfg),
		Navigate: config.Ms(cfg.Delays.Navigate),
		Selectors: parse.DOMSelectors{
			Messages: cfg.Selectors.Messages,
			Title:    cfg.Selectors.Title,
		},
	}, log)

	s.handler = channel.NewHandler(executor, log)
	s.client = channel.NewClient(channel.Local{Handler: s.handler}, config.Ms(cfg.Timeouts.Channel), log)
	s.bulk = bulk.New(s.client, page, harvest, bopts, log)
	return s, nil
}

func openPage(ctx context.Context, cfg *config.Config, opts browser.Options, log *slog.Logger) (browser.Page, error) {
	switch cfg.Driver {
	case "rod":
		p, err := roddriver.Open(ctx, opts, log)
		if err != nil {
			return nil, fmt.Errorf("start browser: %w", err)
		}
		return p, nil
	default:
		p, err := cdpdriver.Open(ctx, opts, log)
		if err != nil {
			return nil, fmt.Errorf("start browser: %w", err)
		}
		return p, nil
	}
}

// newDoer picks how backend requests leave: from inside the tab, or from
// this process carrying the tab's cookies.
func newDoer(ctx context.Context, cfg *config.Config, page browser.Page) (transport.Doer, error) {
	if cfg.Transport != "http" {
		return browser.FetchDoer{Page: page}, nil
	}
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return backend.NewHTTPDoer(cfg.BaseURL, cookies)
}

func schedule(cfg *config.Config) credential.Schedule {
	retry := make([]time.Duration, len(cfg.Delays.HarvestRetry))
	for i, ms := range cfg.Delays.HarvestRetry {
		retry[i] = config.Ms(ms)
	}
	return credential.Schedule{Retry: retry, ProbeAfter: config.Ms(cfg.Delays.ProbeAfter)}
}

// chatHosts are the hosts the tab may be on, including a configured
// base_url outside the defaults.
func chatHosts(cfg *config.Config) []string {
	hosts := slices.Clone(browser.ChatHosts)
	if h := cfg.Host(); h != "" && !slices.Contains(hosts, h) {
		hosts = append(hosts, h)
	}
	return hosts
}

// startHost runs cmdline and speaks the framed channel over its stdio.
func startHost(cmdline string) (*channel.Stream, func() error, error) {
	args := strings.Fields(cmdline)
	if len(args) == 0 {
		return nil, nil, fmt.Errorf("empty host command")
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start host %q: %w", args[0], err)
	}
	stop := func() error {
		stdin.Close()
		return cmd.Wait()
	}
	return channel.NewStream(stdout, stdin), stop, nil
}
