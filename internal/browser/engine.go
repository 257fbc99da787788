package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"

	"github.com/delist-sh/delist/pkg/models"
)

// Actions is the surface the scan and removal engines drive. Every
// implementation talks to one live page; sessions are not shared
// across broker tasks.
type Actions interface {
	Navigate(ctx context.Context, url string) error
	Fill(selector, value string) error
	Click(selector string) error
	WaitFor(selector string, timeout time.Duration) error
	ExtractText(selector string) (string, error)
	Content() (string, error)
	Screenshot() ([]byte, error)
	Close() error
}

// Engine owns the single Chromium process and hands out sessions, each
// backed by its own browser context with a rotated fingerprint. All
// navigation flows through the shared domain pacer.
type Engine struct {
	cfg          models.BrowserConfig
	pacer        *DomainPacer
	fingerprints *FingerprintPool
	logger       *logrus.Logger

	mu            sync.Mutex
	pw            *playwright.Playwright
	browser       playwright.Browser
	isInitialized bool
}

func NewEngine(cfg models.BrowserConfig, pacer *DomainPacer, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	if pacer == nil {
		pacer = NewDomainPacer(cfg.MinDomainDelay, logger)
	}
	return &Engine{
		cfg:          cfg,
		pacer:        pacer,
		fingerprints: NewFingerprintPool(),
		logger:       logger,
	}
}

func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isInitialized {
		return nil
	}

	if err := playwright.Install(); err != nil {
		e.logger.WithError(err).Warn("Playwright browser install failed (continuing if already installed)")
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start Playwright: %w", err)
	}
	e.pw = pw

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(e.cfg.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-first-run",
			"--no-default-browser-check",
		},
	})
	if err != nil {
		_ = pw.Stop()
		e.pw = nil
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	e.browser = browser
	e.isInitialized = true
	e.logger.Info("Browser engine initialized")
	return nil
}

// NewSession opens an isolated browser context with the next
// fingerprint from the pool. Callers must Close the session.
func (e *Engine) NewSession(ctx context.Context) (*Session, error) {
	if err := e.Initialize(); err != nil {
		return nil, err
	}

	fp := e.fingerprints.Next()
	bctx, err := e.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:  &fp.UserAgent,
		Viewport:   &playwright.Size{Width: fp.ViewportWidth, Height: fp.ViewportHeight},
		TimezoneId: &fp.Timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	bctx.SetDefaultTimeout(float64(e.cfg.NavigateTimeout.Milliseconds()))
	bctx.SetDefaultNavigationTimeout(float64(e.cfg.NavigateTimeout.Milliseconds()))

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &Session{
		engine:      e,
		context:     bctx,
		page:        page,
		fingerprint: fp,
		timeout:     e.cfg.NavigateTimeout,
	}, nil
}

// FetchHTML is the one-shot path the scan orchestrator uses: fresh
// session, navigate, grab the document, tear down.
func (e *Engine) FetchHTML(ctx context.Context, url string) (string, error) {
	session, err := e.NewSession(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = session.Close() }()

	if err := session.Navigate(ctx, url); err != nil {
		return "", err
	}
	return session.Content()
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser != nil {
		if err := e.browser.Close(); err != nil {
			return err
		}
		e.browser = nil
	}
	if e.pw != nil {
		if err := e.pw.Stop(); err != nil {
			return err
		}
		e.pw = nil
	}
	e.isInitialized = false
	return nil
}

// Session drives a single page inside its own browser context.
type Session struct {
	engine      *Engine
	context     playwright.BrowserContext
	page        playwright.Page
	fingerprint Fingerprint
	timeout     time.Duration
	mu          sync.Mutex
}

func (s *Session) Fingerprint() Fingerprint { return s.fingerprint }

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.engine.pacer.Allow(url); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
	})
	if err != nil {
		return &NavigationError{
			URL:     url,
			Timeout: isTimeoutMessage(err.Error()),
			Err:     err,
		}
	}
	if resp != nil && resp.Status() >= 400 {
		return &HTTPStatusError{URL: url, Status: resp.Status()}
	}
	return nil
}

func (s *Session) Fill(selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page.Fill(selector, value)
}

func (s *Session) Click(selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page.Click(selector)
}

func (s *Session) WaitFor(selector string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return &SelectorNotFoundError{Selector: selector}
	}
	return nil
}

func (s *Session) ExtractText(selector string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, err := s.page.InnerText(selector)
	if err != nil {
		return "", &SelectorNotFoundError{Selector: selector}
	}
	return strings.TrimSpace(text), nil
}

func (s *Session) Content() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page.Content()
}

func (s *Session) Screenshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.context != nil {
		if err := s.context.Close(); err != nil {
			return err
		}
		s.context = nil
	}
	return nil
}

func isTimeoutMessage(msg string) bool {
	return strings.Contains(msg, "Timeout") || strings.Contains(msg, "timeout")
}
