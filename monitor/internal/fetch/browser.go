package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// SessionConfig configures the shared headless browser session used for
// LinkedIn targets.
type SessionConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// CookieFile is a JSON file of session cookies (li_at and friends)
	// exported from an authenticated browser. Empty = start unauthenticated;
	// every LinkedIn fetch will then hit the authwall.
	CookieFile string

	// RecycleInterval is the maximum lifetime of a Chrome process before it
	// is restarted. Default: 4h.
	RecycleInterval time.Duration

	// NavTimeout bounds navigation plus page load. Default: 45s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *SessionConfig) defaults() {
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session manages one Chrome process shared by all LinkedIn fetches:
// launch, cookie injection, time-based recycling, teardown.
type Session struct {
	cfg     SessionConfig
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
}

// NewSession creates a Session. Call Start to launch Chrome.
func NewSession(cfg SessionConfig) *Session {
	cfg.defaults()
	return &Session{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance) and injects the
// stored session cookies.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("fetch: session is closed")
	}
	return s.launchLocked()
}

func (s *Session) launchLocked() error {
	log := s.cfg.Logger

	var wsURL string
	if s.cfg.RemoteURL != "" {
		wsURL = s.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(true).
			Set("disable-blink-features", "AutomationControlled").
			Set("window-size", "1920,1080")
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("fetch: launch chrome: %w", err)
		}
		wsURL = u
		s.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("fetch: connect chrome: %w", err)
	}

	if s.cfg.CookieFile != "" {
		if err := loadCookies(b, s.cfg.CookieFile); err != nil {
			b.Close()
			return fmt.Errorf("fetch: load cookies: %w", err)
		}
		log.Info("browser: session cookies loaded", "file", s.cfg.CookieFile)
	}

	s.browser = b
	s.startAt = time.Now()
	return nil
}

// page opens a stealth tab, recycling Chrome first when it has outlived
// RecycleInterval.
func (s *Session) page(ctx context.Context) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("fetch: session is closed")
	}
	if s.browser == nil || time.Since(s.startAt) > s.cfg.RecycleInterval {
		if s.browser != nil {
			s.cfg.Logger.Info("browser: recycling", "uptime", time.Since(s.startAt))
			s.cleanupLocked()
		}
		if err := s.launchLocked(); err != nil {
			return nil, err
		}
	}
	return stealth.Page(s.browser)
}

// Navigate opens url in a fresh stealth tab and returns the rendered DOM,
// the URL the browser actually landed on, and the page title. The landed
// URL differs from the requested one on auth redirects.
func (s *Session) Navigate(ctx context.Context, url string) (dom []byte, landedURL, title string, err error) {
	page, err := s.page(ctx)
	if err != nil {
		return nil, "", "", err
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return nil, "", "", fmt.Errorf("fetch: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	info, err := page.Context(navCtx).Info()
	if err != nil {
		return nil, "", "", fmt.Errorf("fetch: page info: %w", err)
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, "", "", fmt.Errorf("fetch: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), info.URL, info.Title, nil
}

// Close shuts down Chrome.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cleanupLocked()
	return nil
}

func (s *Session) cleanupLocked() {
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}

// cookieRecord is the on-disk cookie format: the JSON produced by common
// cookie-export browser extensions.
type cookieRecord struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expirationDate"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
}

func loadCookies(b *rod.Browser, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var records []cookieRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	cookies := make([]*proto.NetworkCookieParam, 0, len(records))
	for _, r := range records {
		c := &proto.NetworkCookieParam{
			Name:     r.Name,
			Value:    r.Value,
			Domain:   r.Domain,
			Path:     r.Path,
			Secure:   r.Secure,
			HTTPOnly: r.HTTPOnly,
		}
		if r.Expires > 0 {
			c.Expires = proto.TimeSinceEpoch(r.Expires)
		}
		cookies = append(cookies, c)
	}
	return b.SetCookies(cookies)
}
