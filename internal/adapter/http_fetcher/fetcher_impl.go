package http_fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/adapter/extractor"
	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

const maxBodyBytes = 10 << 20

// Fetcher fetches pages over plain HTTP with the session's cookies and user
// agent. The underlying client is shared by every page.
type Fetcher struct {
	client    *http.Client
	identity  string
	extractor *extractor.Extractor
	ready     string
	timeout   time.Duration
	logger    *zap.Logger
}

// New seeds a cookie jar from sess. ready, when set, is a selector that must
// be present for a page to count as loaded.
func New(sess entity.Session, ex *extractor.Extractor, ready string, timeout time.Duration, logger *zap.Logger) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	for _, c := range sess.Cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
			Expires:  c.Expires,
		}
		if strings.HasPrefix(c.Domain, ".") {
			hc.Domain = host
		}
		jar.SetCookies(&url.URL{Scheme: scheme, Host: host, Path: "/"}, []*http.Cookie{hc})
	}
	logger.Debug("http fetcher ready", zap.Stringer("session", sess))

	return &Fetcher{
		client:    &http.Client{Jar: jar},
		identity:  sess.Identity,
		extractor: ex,
		ready:     ready,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

func (f *Fetcher) Open(ctx context.Context) (repository.Page, error) {
	return &page{f: f}, nil
}

func (f *Fetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

type page struct {
	f *Fetcher
}

func (p *page) Close() error { return nil }

func (p *page) Fetch(ctx context.Context, job entity.Job) (entity.Fields, error) {
	f := p.f
	u, err := url.Parse(job.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, repository.Fatal(fmt.Errorf("invalid url %q", job.URL))
	}

	fctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, repository.Fatal(err)
	}
	if f.identity != "" {
		req.Header.Set("User-Agent", f.identity)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, repository.Transient(fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, repository.Fatal(fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	if f.ready != "" && doc.Find(f.ready).Length() == 0 {
		return nil, repository.Transient(fmt.Errorf("ready selector %q not found", f.ready))
	}
	return f.extractor.ExtractDocument(doc), nil
}

// classifyTransport keeps parent cancellation unclassified so the worker
// reports it as canceled; everything else is a timeout or transient error.
func classifyTransport(parent context.Context, err error) error {
	if parent.Err() != nil {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return repository.Timeout(err)
	}
	return repository.Transient(err)
}
