package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	BaseURL    string `toml:"base_url"`
	ProfileDir string `toml:"profile_dir"`
	Headless   bool   `toml:"headless"`
	Driver     string `toml:"driver"`     // "chromedp" or "rod"
	RemoteURL  string `toml:"remote_url"` // attach to a running browser instead of launching one
	Transport  string `toml:"transport"`  // "page" or "http"
	DBPath     string `toml:"db_path"`
	ExportDir  string `toml:"export_dir"`

	Delays    Delays    `toml:"delays"`
	Timeouts  Timeouts  `toml:"timeouts"`
	Selectors Selectors `toml:"selectors"`
}

// Delays are settle pauses in milliseconds inserted after simulated UI actions.
type Delays struct {
	Scroll        int   `toml:"scroll"`
	Hover         int   `toml:"hover"`
	Menu          int   `toml:"menu"`
	Confirm       int   `toml:"confirm"`
	Navigate      int   `toml:"navigate"`
	Trigger       int   `toml:"trigger"`
	ScriptInit    int   `toml:"script_init"`
	Reload        int   `toml:"reload"`
	ProbeAfter    int   `toml:"probe_after"`
	HarvestRetry  []int `toml:"harvest_retry"`
	OptionsTries  int   `toml:"options_tries"`
	ClimbAncestor int   `toml:"climb_ancestor"`
}

// Timeouts are caps in milliseconds.
type Timeouts struct {
	Channel  int `toml:"channel"`
	PageLoad int `toml:"page_load"`
	API      int `toml:"api"`
}

type Selectors struct {
	Conversations []string `toml:"conversations"`
	Messages      []string `toml:"messages"`
	Title         string   `toml:"title"`
}

func Default(home string) *Config {
	return &Config{
		BaseURL:    "https://chatgpt.com",
		ProfileDir: filepath.Join(home, ".config", "csw", "profile"),
		Headless:   true,
		Driver:     "chromedp",
		Transport:  "page",
		DBPath:     filepath.Join(home, ".config", "csw", "csw.db"),
		ExportDir:  filepath.Join(home, "Downloads"),
		Delays: Delays{
			Scroll:        50,
			Hover:         200,
			Menu:          300,
			Confirm:       500,
			Navigate:      3000,
			Trigger:       1000,
			ScriptInit:    1000,
			Reload:        1500,
			ProbeAfter:    1000,
			HarvestRetry:  []int{50, 100, 300, 800, 1500, 3000},
			OptionsTries:  3,
			ClimbAncestor: 5,
		},
		Timeouts: Timeouts{
			Channel:  8000,
			PageLoad: 10000,
			API:      5000,
		},
		Selectors: Selectors{
			Conversations: []string{
				`a[href*="/c/"]`,
				`nav a[href*="/c/"]`,
				`[role="button"] a[href*="/c/"]`,
				`div[class*="sidebar"] a[href*="/c/"]`,
				`li a[href*="/c/"]`,
				`a[href^="/c/"]`,
				`.overflow-y-auto a[href*="/c/"]`,
			},
			Messages: []string{`[class*="message"]`, `[role="article"]`},
			Title:    `[class*="title"]`,
		},
	}
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	cfg := Default(home)

	cfgPath := filepath.Join(home, ".config", "csw", "config.toml")
	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	// expand ~ in paths
	cfg.ProfileDir = expandHome(cfg.ProfileDir, home)
	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.ExportDir = expandHome(cfg.ExportDir, home)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not an absolute URL", c.BaseURL)
	}
	switch c.Driver {
	case "chromedp", "rod":
	default:
		return fmt.Errorf("unknown driver %q (want chromedp or rod)", c.Driver)
	}
	switch c.Transport {
	case "page", "http":
	default:
		return fmt.Errorf("unknown transport %q (want page or http)", c.Transport)
	}
	if len(c.Selectors.Conversations) == 0 {
		return fmt.Errorf("selectors.conversations must not be empty")
	}
	return nil
}

// Host returns the host of BaseURL.
func (c *Config) Host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// Ms converts a millisecond setting to a duration.
func Ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
