package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/interfaces"
)

// ErrElementNotFound is returned when a selector matches nothing
var ErrElementNotFound = errors.New("element not found")

// queryHelper resolves a selector to a node array. XPath when it starts with "/" or "(".
const queryHelper = `function __q(sel){const out=[];if(sel.startsWith('/')||sel.startsWith('(')){const r=document.evaluate(sel,document,null,XPathResult.ORDERED_NODE_SNAPSHOT_TYPE,null);for(let i=0;i<r.snapshotLength;i++)out.push(r.snapshotItem(i));}else{document.querySelectorAll(sel).forEach(n=>out.push(n));}return out;}
function __visible(n){const b=n.getBoundingClientRect();return !!(n.offsetParent!==null&&b.width>0&&b.height>0);}`

// chromePage implements interfaces.Page on a chromedp tab
type chromePage struct {
	tabCtx          context.Context
	actionTimeout   time.Duration
	navigateTimeout time.Duration
	logger          arbor.ILogger
}

var _ interfaces.Page = (*chromePage)(nil)

func newChromePage(tabCtx context.Context, actionTimeout, navigateTimeout time.Duration, logger arbor.ILogger) *chromePage {
	return &chromePage{
		tabCtx:          tabCtx,
		actionTimeout:   actionTimeout,
		navigateTimeout: navigateTimeout,
		logger:          logger,
	}
}

// bind derives a context that carries the tab but is cancelled with the caller's ctx
func (p *chromePage) bind(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	stop := context.AfterFunc(ctx, cancel)

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		prev := cancel
		cancel = func() { cancelDeadline(); prev() }
	}
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		prev := cancel
		cancel = func() { cancelTimeout(); prev() }
	}

	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := p.bind(ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// eval runs body with `nodes` bound to the matches of sel
func (p *chromePage) eval(ctx context.Context, sel, body string, res interface{}) error {
	quoted, err := json.Marshal(sel)
	if err != nil {
		return err
	}
	expr := fmt.Sprintf("(function(){%s\nconst nodes=__q(%s);%s})()", queryHelper, quoted, body)
	return p.run(ctx, p.actionTimeout, chromedp.Evaluate(expr, res))
}

func queryOption(sel string) chromedp.QueryOption {
	if strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(") {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	// Pages that never fire their load event fail after navigateTimeout
	return p.run(ctx, p.navigateTimeout, chromedp.Navigate(url))
}

func (p *chromePage) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.WaitVisible(sel, queryOption(sel)))
}

func (p *chromePage) Count(ctx context.Context, sel string) (int, error) {
	var n int
	if err := p.eval(ctx, sel, "return nodes.length;", &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *chromePage) Text(ctx context.Context, sel string) (string, error) {
	var text *string
	if err := p.eval(ctx, sel, "return nodes.length ? (nodes[0].innerText || nodes[0].textContent || '') : null;", &text); err != nil {
		return "", err
	}
	if text == nil {
		return "", ErrElementNotFound
	}
	return *text, nil
}

func (p *chromePage) Texts(ctx context.Context, sel string) ([]string, error) {
	var texts []string
	if err := p.eval(ctx, sel, "return nodes.map(n => n.innerText || n.textContent || '');", &texts); err != nil {
		return nil, err
	}
	return texts, nil
}

func (p *chromePage) Attributes(ctx context.Context, sel, name string) ([]string, error) {
	quoted, err := json.Marshal(name)
	if err != nil {
		return nil, err
	}
	var values []string
	body := fmt.Sprintf("return nodes.map(n => n.getAttribute(%s)).filter(v => v !== null);", quoted)
	if err := p.eval(ctx, sel, body, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (p *chromePage) Click(ctx context.Context, sel string) error {
	return p.run(ctx, p.actionTimeout, chromedp.Click(sel, queryOption(sel), chromedp.NodeVisible))
}

func (p *chromePage) ClickVisible(ctx context.Context, sel string, pause time.Duration) (int, error) {
	var visible []int
	if err := p.eval(ctx, sel, "return nodes.map((n, i) => __visible(n) ? i : -1).filter(i => i >= 0);", &visible); err != nil {
		return 0, err
	}

	clicked := 0
	for _, idx := range visible {
		var ok bool
		body := fmt.Sprintf("const n = nodes[%d]; if (!n || !__visible(n)) return false; n.click(); return true;", idx)
		if err := p.eval(ctx, sel, body, &ok); err != nil {
			p.logger.Debug().Err(err).Int("index", idx).Msg("Failed to click element")
			continue
		}
		if ok {
			clicked++
		}
		if err := sleepContext(ctx, pause); err != nil {
			return clicked, err
		}
	}
	return clicked, nil
}

func (p *chromePage) Fill(ctx context.Context, sel, value string) error {
	opt := queryOption(sel)
	return p.run(ctx, p.actionTimeout,
		chromedp.Click(sel, opt, chromedp.NodeVisible),
		chromedp.SetValue(sel, "", opt),
		chromedp.SendKeys(sel, value, opt),
	)
}

func (p *chromePage) PressKey(ctx context.Context, key interfaces.Key) error {
	var k string
	switch key {
	case interfaces.KeyArrowDown:
		k = kb.ArrowDown
	case interfaces.KeyEnter:
		k = kb.Enter
	default:
		k = string(key)
	}
	return p.run(ctx, p.actionTimeout, chromedp.KeyEvent(k))
}

func (p *chromePage) Wheel(ctx context.Context, sel string, deltaY float64) error {
	var point []float64
	body := "const n = nodes[0]; if (!n) return [window.innerWidth/2, window.innerHeight/2]; const b = n.getBoundingClientRect(); return [b.left + b.width/2, b.top + b.height/2];"
	if sel == "" {
		sel = "body"
	}
	if err := p.eval(ctx, sel, body, &point); err != nil {
		return err
	}
	if len(point) != 2 {
		return fmt.Errorf("unexpected wheel target: %v", point)
	}

	return p.run(ctx, p.actionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, point[0], point[1]).
			WithDeltaX(0).
			WithDeltaY(deltaY).
			Do(ctx)
	}))
}

func (p *chromePage) ScrollPosition(ctx context.Context, sel string) (float64, error) {
	var pos float64
	if sel == "" {
		if err := p.run(ctx, p.actionTimeout, chromedp.Evaluate("window.scrollY", &pos)); err != nil {
			return 0, err
		}
		return pos, nil
	}
	if err := p.eval(ctx, sel, "return nodes.length ? nodes[0].scrollTop : window.scrollY;", &pos); err != nil {
		return 0, err
	}
	return pos, nil
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromePage) OpenFrameLinks(ctx context.Context, frameSel, itemSel string) ([]string, error) {
	var frames []*cdp.Node
	if err := p.run(ctx, p.actionTimeout, chromedp.Nodes(frameSel, &frames, queryOption(frameSel), chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, nil
	}

	var items []*cdp.Node
	if err := p.run(ctx, p.actionTimeout, chromedp.Nodes(itemSel, &items, queryOption(itemSel), chromedp.FromNode(frames[0]), chromedp.AtLeast(0))); err != nil {
		return nil, err
	}

	opener := chromedp.FromContext(p.tabCtx).Target.TargetID
	urls := make([]string, 0, len(items))

	// One popup at a time, they share this tab's browser context
	for i, item := range items {
		waitCtx, cancelWait := p.bind(ctx, p.actionTimeout*2)
		popups := chromedp.WaitNewTarget(waitCtx, func(info *target.Info) bool {
			return info.OpenerID == opener
		})

		if err := p.run(ctx, p.actionTimeout, chromedp.MouseClickNode(item)); err != nil {
			cancelWait()
			p.logger.Debug().Err(err).Int("item", i).Msg("Failed to click frame link")
			continue
		}

		select {
		case id, ok := <-popups:
			if ok {
				if url, err := p.inspectPopup(ctx, id); err != nil {
					p.logger.Debug().Err(err).Int("item", i).Msg("Failed to read popup URL")
				} else {
					urls = append(urls, url)
				}
			}
		case <-waitCtx.Done():
			p.logger.Debug().Int("item", i).Msg("Frame link opened no popup")
		}
		cancelWait()
	}

	return urls, nil
}

// inspectPopup reads the popup URL and closes the popup
func (p *chromePage) inspectPopup(ctx context.Context, id target.ID) (string, error) {
	popupCtx, closePopup := chromedp.NewContext(p.tabCtx, chromedp.WithTargetID(id))
	defer closePopup()

	runCtx, cancel := context.WithTimeout(popupCtx, p.actionTimeout*2)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var url string
	if err := chromedp.Run(runCtx, chromedp.WaitReady("body", chromedp.ByQuery), chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
