package chromedp_fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/adapter/extractor"
	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

type Config struct {
	Headless bool
	Timeout  time.Duration
	// Ready is the selector waited for before the DOM is read.
	Ready string
}

// Fetcher drives one browser whose cookie store is seeded from the session.
// Every Open creates a new tab in that browser.
type Fetcher struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	extractor     *extractor.Extractor
	cfg           Config
	logger        *zap.Logger
}

// New starts the browser and installs the session cookies.
func New(ctx context.Context, sess entity.Session, ex *extractor.Extractor, cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.Ready == "" {
		cfg.Ready = "body"
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if sess.Identity != "" {
		opts = append(opts, chromedp.UserAgent(sess.Identity))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	// The first Run allocates the browser and binds its lifetime to the
	// context it is given, so it must not carry a timeout.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	seedCtx, cancel := context.WithTimeout(browserCtx, cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(seedCtx, network.Enable(), setCookies(sess.Cookies)); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("seed session cookies: %w", err)
	}
	logger.Info("browser started", zap.Stringer("session", sess), zap.Bool("headless", cfg.Headless))

	return &Fetcher{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		extractor:     ex,
		cfg:           cfg,
		logger:        logger,
	}, nil
}

func setCookies(cookies []entity.Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := cookieParams(cookies)
		if len(params) == 0 {
			return nil
		}
		return network.SetCookies(params).Do(ctx)
	})
}

func cookieParams(cookies []entity.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if !c.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(c.Expires)
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return params
}

// blockedResources are never loaded; the extractor reads only the DOM.
var blockedResources = []network.ResourceType{
	network.ResourceTypeImage,
	network.ResourceTypeMedia,
	network.ResourceTypeFont,
}

// blockPatterns pauses requests for blockedResources only, so every paused
// request is one to fail.
func blockPatterns() []*fetch.RequestPattern {
	patterns := make([]*fetch.RequestPattern, 0, len(blockedResources))
	for _, rt := range blockedResources {
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   "*",
			ResourceType: rt,
			RequestStage: fetch.RequestStageRequest,
		})
	}
	return patterns
}

// Open creates a tab owned by one worker.
func (f *Fetcher) Open(ctx context.Context) (repository.Page, error) {
	tabCtx, cancel := chromedp.NewContext(f.browserCtx)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		e, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tabCtx)
			if c == nil || c.Target == nil {
				return
			}
			err := fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(cdp.WithExecutor(tabCtx, c.Target))
			if err != nil && tabCtx.Err() == nil {
				f.logger.Debug("fail blocked request", zap.String("type", string(e.ResourceType)), zap.Error(err))
			}
		}()
	})
	if err := chromedp.Run(tabCtx, fetch.Enable().WithPatterns(blockPatterns())); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &page{ctx: tabCtx, cancel: cancel, f: f}, nil
}

func (f *Fetcher) Close() error {
	f.browserCancel()
	f.allocCancel()
	return nil
}

type page struct {
	ctx    context.Context
	cancel context.CancelFunc
	f      *Fetcher
}

func (p *page) Close() error {
	p.cancel()
	return nil
}

// Fetch navigates the tab and extracts fields from the rendered DOM. The
// navigation is bounded by the configured timeout and aborted when ctx ends.
func (p *page) Fetch(ctx context.Context, job entity.Job) (entity.Fields, error) {
	u, err := url.Parse(job.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, repository.Fatal(fmt.Errorf("invalid url %q", job.URL))
	}

	tctx, cancel := context.WithTimeout(p.ctx, p.f.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err = chromedp.Run(tctx,
		chromedp.Navigate(u.String()),
		chromedp.WaitReady(p.f.cfg.Ready, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(tctx.Err(), context.DeadlineExceeded):
			return nil, repository.Timeout(err)
		default:
			return nil, repository.Transient(err)
		}
	}

	fields, err := p.f.extractor.ExtractString(html)
	if err != nil {
		return nil, repository.Transient(err)
	}
	return fields, nil
}
