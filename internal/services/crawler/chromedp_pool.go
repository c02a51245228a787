package crawler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
)

// ChromeDPPool owns one shared browser engine and hands out a bounded number of tabs
type ChromeDPPool struct {
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	slots           chan struct{}
	mu              sync.Mutex
	initialized     bool
	config          ChromeDPPoolConfig
	logger          arbor.ILogger

	active   int64
	acquired int64
}

// ChromeDPPoolConfig holds configuration for the browser pool
type ChromeDPPoolConfig struct {
	Sessions        int           `json:"sessions"`
	UserAgent       string        `json:"user_agent"`
	Headless        bool          `json:"headless"`
	DisableGPU      bool          `json:"disable_gpu"`
	NoSandbox       bool          `json:"no_sandbox"`
	StartupTimeout  time.Duration `json:"startup_timeout"`
	ActionTimeout   time.Duration `json:"action_timeout"`
	NavigateTimeout time.Duration `json:"navigate_timeout"`
	WindowWidth     int           `json:"window_width"`
	WindowHeight    int           `json:"window_height"`
}

var _ interfaces.SessionPool = (*ChromeDPPool)(nil)

// NewChromeDPPool creates a browser pool. InitBrowserPool must be called before Acquire.
func NewChromeDPPool(config ChromeDPPoolConfig, logger arbor.ILogger) *ChromeDPPool {
	return &ChromeDPPool{
		config: config,
		logger: logger,
	}
}

// validate fills defaults and rejects unusable settings
func (c *ChromeDPPoolConfig) validate() error {
	if c.Sessions <= 0 {
		return fmt.Errorf("sessions must be greater than 0, got: %d", c.Sessions)
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 30 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 5 * time.Second
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 60 * time.Second
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		c.WindowWidth, c.WindowHeight = 1920, 1080
	}
	return nil
}

// InitBrowserPool starts the browser engine and verifies it responds
func (p *ChromeDPPool) InitBrowserPool() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("browser pool already initialized")
	}
	if err := p.config.validate(); err != nil {
		return err
	}
	if p.config.Sessions > 20 {
		p.logger.Warn().
			Int("sessions", p.config.Sessions).
			Msg("Large session pool size detected - this may consume significant memory")
	}

	startTime := time.Now()
	p.logger.Info().
		Int("sessions", p.config.Sessions).
		Bool("headless", p.config.Headless).
		Msg("Initializing ChromeDP browser pool")

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", p.config.DisableGPU),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", "en-US"),
		chromedp.WindowSize(p.config.WindowWidth, p.config.WindowHeight),
		chromedp.UserAgent(p.config.UserAgent),
	)

	p.allocatorCtx, p.allocatorCancel = chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	p.browserCtx, p.browserCancel = chromedp.NewContext(p.allocatorCtx)

	testCtx, testCancel := context.WithTimeout(p.browserCtx, p.config.StartupTimeout)
	defer testCancel()

	var title string
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank"), chromedp.Title(&title)); err != nil {
		p.browserCancel()
		p.allocatorCancel()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	p.slots = make(chan struct{}, p.config.Sessions)
	p.initialized = true

	p.logger.Info().
		Dur("startup_time", time.Since(startTime)).
		Msg("ChromeDP browser pool initialized successfully")

	return nil
}

// Acquire opens a new tab once a session slot is free
func (p *ChromeDPPool) Acquire(ctx context.Context) (interfaces.Page, func(), error) {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return nil, nil, fmt.Errorf("browser pool not initialized")
	}
	slots := p.slots
	browserCtx := p.browserCtx
	p.mu.Unlock()

	select {
	case slots <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("waiting for browser session: %w", ctx.Err())
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	// Running an empty action list creates the target
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		<-slots
		return nil, nil, fmt.Errorf("failed to open browser tab: %w", err)
	}

	atomic.AddInt64(&p.active, 1)
	n := atomic.AddInt64(&p.acquired, 1)

	p.logger.Debug().
		Int64("session", n).
		Int64("active", atomic.LoadInt64(&p.active)).
		Msg("Browser session acquired")

	var once sync.Once
	release := func() {
		once.Do(func() {
			tabCancel()
			atomic.AddInt64(&p.active, -1)
			<-slots
			p.logger.Debug().Int64("session", n).Msg("Browser session released")
		})
	}

	return newChromePage(tabCtx, p.config.ActionTimeout, p.config.NavigateTimeout, p.logger), release, nil
}

// ShutdownBrowserPool closes every tab and stops the browser
func (p *ChromeDPPool) ShutdownBrowserPool() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		p.logger.Debug().Msg("Browser pool already shut down or never initialized")
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.browserCancel()
		p.allocatorCancel()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		p.logger.Warn().Msg("Browser pool shutdown timed out")
	}

	p.initialized = false
	p.logger.Info().Msg("ChromeDP browser pool shut down")
	return nil
}

// GetPoolStats returns statistics about the browser pool
func (p *ChromeDPPool) GetPoolStats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[string]interface{}{
		"sessions":        p.config.Sessions,
		"active_sessions": atomic.LoadInt64(&p.active),
		"total_acquired":  atomic.LoadInt64(&p.acquired),
		"initialized":     p.initialized,
	}
}

// IsInitialized returns whether the browser pool has been initialized
func (p *ChromeDPPool) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}
