// Package crawlertest provides a scripted in-memory Page and SessionPool for tests.
package crawlertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/services/crawler"
)

// Page is a scripted interfaces.Page. Selectors resolve against the Texts and Attrs
// tables; Errors[sel] (or Errors["op:sel"]) makes any call on sel fail.
type Page struct {
	mu     sync.Mutex
	texts  map[string][]string
	attrs  map[string]map[string][]string
	errs   map[string]error
	scroll float64
	calls  []string

	URL        string
	HTML       string
	FrameLinks []string

	// Hooks run after the call is recorded and outside the page lock
	OnClick func(sel string)
	OnKey   func(key interfaces.Key)
	OnWheel func(sel string)
}

var _ interfaces.Page = (*Page)(nil)

func NewPage() *Page {
	return &Page{
		texts: make(map[string][]string),
		attrs: make(map[string]map[string][]string),
		errs:  make(map[string]error),
	}
}

// SetTexts replaces the texts matched by sel
func (p *Page) SetTexts(sel string, texts ...string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts[sel] = texts
	return p
}

// SetAttrs replaces the values of attribute name on the matches of sel
func (p *Page) SetAttrs(sel, name string, values ...string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attrs[sel] == nil {
		p.attrs[sel] = make(map[string][]string)
	}
	p.attrs[sel][name] = values
	return p
}

// FailOn makes calls on key fail. key is a selector or "op:selector" (e.g. "click:sel", "navigate:").
func (p *Page) FailOn(key string, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[key] = err
	return p
}

// SetScroll sets the value returned by ScrollPosition
func (p *Page) SetScroll(pos float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scroll = pos
}

// Calls returns the recorded "op:selector" log
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// CountCalls returns how often "op:selector" was recorded
func (p *Page) CountCalls(call string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// record logs the call and returns its scripted error
func (p *Page) record(op, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, op+":"+sel)
	if err, ok := p.errs[op+":"+sel]; ok {
		return err
	}
	if err, ok := p.errs[sel]; ok && sel != "" {
		return err
	}
	return nil
}

func (p *Page) present(sel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.texts[sel]) > 0 {
		return true
	}
	for _, values := range p.attrs[sel] {
		if len(values) > 0 {
			return true
		}
	}
	return false
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.record("navigate", ""); err != nil {
		return err
	}
	p.mu.Lock()
	p.URL = url
	p.mu.Unlock()
	return ctx.Err()
}

func (p *Page) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	if err := p.record("wait", sel); err != nil {
		return err
	}
	if !p.present(sel) {
		return fmt.Errorf("wait %s: %w", sel, crawler.ErrElementNotFound)
	}
	return nil
}

func (p *Page) Count(ctx context.Context, sel string) (int, error) {
	if err := p.record("count", sel); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.texts[sel])
	for _, values := range p.attrs[sel] {
		if len(values) > n {
			n = len(values)
		}
	}
	return n, nil
}

func (p *Page) Text(ctx context.Context, sel string) (string, error) {
	if err := p.record("text", sel); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.texts[sel]) == 0 {
		return "", crawler.ErrElementNotFound
	}
	return p.texts[sel][0], nil
}

func (p *Page) Texts(ctx context.Context, sel string) ([]string, error) {
	if err := p.record("texts", sel); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts[sel]...), nil
}

func (p *Page) Attributes(ctx context.Context, sel, name string) ([]string, error) {
	if err := p.record("attrs", sel); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.attrs[sel][name]...), nil
}

func (p *Page) Click(ctx context.Context, sel string) error {
	if err := p.record("click", sel); err != nil {
		return err
	}
	if !p.present(sel) {
		return crawler.ErrElementNotFound
	}
	if p.OnClick != nil {
		p.OnClick(sel)
	}
	return nil
}

func (p *Page) ClickVisible(ctx context.Context, sel string, pause time.Duration) (int, error) {
	if err := p.record("clickvisible", sel); err != nil {
		return 0, err
	}
	p.mu.Lock()
	n := len(p.texts[sel])
	p.mu.Unlock()
	if p.OnClick != nil && n > 0 {
		p.OnClick(sel)
	}
	return n, nil
}

func (p *Page) Fill(ctx context.Context, sel, value string) error {
	if err := p.record("fill", sel); err != nil {
		return err
	}
	if !p.present(sel) {
		return crawler.ErrElementNotFound
	}
	return nil
}

func (p *Page) PressKey(ctx context.Context, key interfaces.Key) error {
	if err := p.record("key", string(key)); err != nil {
		return err
	}
	if p.OnKey != nil {
		p.OnKey(key)
	}
	return nil
}

func (p *Page) Wheel(ctx context.Context, sel string, deltaY float64) error {
	if err := p.record("wheel", sel); err != nil {
		return err
	}
	if p.OnWheel != nil {
		p.OnWheel(sel)
	}
	return nil
}

func (p *Page) ScrollPosition(ctx context.Context, sel string) (float64, error) {
	if err := p.record("scroll", sel); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scroll, nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	if err := p.record("content", ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HTML, nil
}

func (p *Page) OpenFrameLinks(ctx context.Context, frameSel, itemSel string) ([]string, error) {
	if err := p.record("frames", frameSel); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.FrameLinks...), nil
}

// Pool hands out pages built by NewPage and counts acquisitions. A pool built by
// NewBlockingPool holds at most slots pages at once; further Acquire calls wait.
type Pool struct {
	NewPage func() interfaces.Page
	Err     error

	slots chan struct{}

	acquired int64
	released int64
	active   int64
	peak     int64
}

var _ interfaces.SessionPool = (*Pool)(nil)

// NewPool returns a pool that always hands out page
func NewPool(page interfaces.Page) *Pool {
	return &Pool{NewPage: func() interfaces.Page { return page }}
}

// NewBlockingPool returns a pool of page limited to slots concurrent sessions
func NewBlockingPool(page interfaces.Page, slots int) *Pool {
	pool := NewPool(page)
	pool.slots = make(chan struct{}, slots)
	return pool
}

func (p *Pool) Acquire(ctx context.Context) (interfaces.Page, func(), error) {
	if p.Err != nil {
		return nil, nil, p.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if p.slots != nil {
		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	atomic.AddInt64(&p.acquired, 1)
	active := atomic.AddInt64(&p.active, 1)
	for {
		peak := atomic.LoadInt64(&p.peak)
		if active <= peak || atomic.CompareAndSwapInt64(&p.peak, peak, active) {
			break
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			atomic.AddInt64(&p.active, -1)
			atomic.AddInt64(&p.released, 1)
			if p.slots != nil {
				<-p.slots
			}
		})
	}
	return p.NewPage(), release, nil
}

func (p *Pool) Acquired() int64 { return atomic.LoadInt64(&p.acquired) }
func (p *Pool) Released() int64 { return atomic.LoadInt64(&p.released) }
func (p *Pool) Peak() int64     { return atomic.LoadInt64(&p.peak) }
