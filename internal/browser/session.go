package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"claimexport/internal/config"
)

// Session is one Chrome tab showing the claims page.
type Session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	scripts scripts
	logger  *zap.Logger
}

// Open connects to Chrome (remote when CDP_URL is set, otherwise a local
// process), then attaches to a tab already showing TARGET_URL or opens one.
func Open(cfg config.Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("browser")

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if rawURL := strings.TrimSpace(cfg.CDPURL); rawURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), rawURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", cfg.Headless),
		)
		if path := strings.TrimSpace(cfg.ChromePath); path != "" {
			opts = append(opts, chromedp.ExecPath(path))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	tabCtx, tabCancel, err := attachOrOpen(browserCtx, cfg.TargetURL, logger)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	return &Session{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			browserCancel()
			allocCancel()
		},
		scripts: newScripts(cfg.Selectors),
		logger:  logger,
	}, nil
}

func attachOrOpen(browserCtx context.Context, targetURL string, logger *zap.Logger) (context.Context, context.CancelFunc, error) {
	targetURL = strings.TrimSpace(targetURL)
	if targetURL != "" {
		targets, err := chromedp.Targets(browserCtx)
		if err != nil {
			return nil, nil, fmt.Errorf("list tabs: %w", err)
		}
		for _, t := range targets {
			if t.Type == "page" && strings.HasPrefix(t.URL, targetURL) {
				logger.Info("attaching to open tab", zap.String("url", t.URL))
				ctx, cancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(t.TargetID))
				if err := chromedp.Run(ctx); err != nil {
					cancel()
					return nil, nil, fmt.Errorf("attach tab: %w", err)
				}
				return ctx, cancel, nil
			}
		}
	}

	ctx, cancel := chromedp.NewContext(browserCtx)
	if targetURL == "" {
		return ctx, cancel, nil
	}
	logger.Info("opening tab", zap.String("url", targetURL))
	if err := chromedp.Run(ctx, chromedp.Navigate(targetURL), chromedp.WaitReady("body")); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("navigate %s: %w", targetURL, err)
	}
	return ctx, cancel, nil
}

func (s *Session) Close() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// run executes actions on the tab and stops early when callCtx is done.
func (s *Session) run(callCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if callCtx != nil {
		if done := callCtx.Done(); done != nil {
			go func() {
				select {
				case <-done:
					cancel()
				case <-runCtx.Done():
				}
			}()
		}
	}
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) eval(ctx context.Context, script string, res any) error {
	return s.run(ctx, chromedp.Evaluate(script, res))
}

// WaitForTable blocks until the claims table is in the document or timeout passes.
func (s *Session) WaitForTable(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.run(tctx, chromedp.WaitReady(s.scripts.sel.Table, chromedp.ByQuery))
}

// Cookies returns the tab's cookies for rawURL in net/http form.
func (s *Session) Cookies(ctx context.Context, rawURL string) ([]*http.Cookie, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{rawURL}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out, nil
}

func (s *Session) UserAgent(ctx context.Context) string {
	var ua string
	if err := s.eval(ctx, `navigator.userAgent`, &ua); err != nil {
		return ""
	}
	return ua
}

func (s *Session) TargetInfo(ctx context.Context) (*target.Info, error) {
	var info *target.Info
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		info, err = target.GetTargetInfo().Do(ctx)
		return err
	}))
	return info, err
}
