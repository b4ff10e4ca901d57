package proxy

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"claimexport/internal/util"
)

// CookieSource supplies the browser session's cookies for a URL so the
// fetcher sees what the page sees.
type CookieSource interface {
	Cookies(ctx context.Context, rawURL string) ([]*http.Cookie, error)
}

type Fetcher struct {
	httpClient *http.Client
	cookies    CookieSource
	maxBytes   int64
	userAgent  string
	limiter    *util.Pacer
	logger     *zap.Logger
}

type FetcherOption func(*Fetcher)

func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = c }
}

func WithCookies(src CookieSource) FetcherOption {
	return func(f *Fetcher) { f.cookies = src }
}

func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithRateLimit spaces outgoing requests to at most rps per second.
func WithRateLimit(rps int) FetcherOption {
	return func(f *Fetcher) {
		if rps > 0 {
			f.limiter = util.NewPacer(time.Second / time.Duration(rps))
		}
	}
}

func WithLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

func NewFetcher(timeout time.Duration, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   20 << 20,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Exchange(ctx context.Context, req Request) (Response, error) {
	if req.Action != ActionFetchImage {
		return failure(fmt.Errorf("%w: %q", ErrUnsupportedAction, req.Action)), nil
	}
	dataURI, err := f.fetchDataURI(ctx, req.URL)
	if err != nil {
		f.logger.Debug("image fetch failed", zap.String("url", req.URL), zap.Error(err))
		return failure(err), nil
	}
	return Response{Success: true, Base64: dataURI}, nil
}

func (f *Fetcher) fetchDataURI(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if strings.HasPrefix(rawURL, "data:") {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	if f.limiter != nil {
		if err := f.limiter.WaitTurn(ctx); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.cookies != nil {
		cookies, err := f.cookies.Cookies(ctx, u.String())
		if err != nil {
			f.logger.Debug("cookie lookup failed", zap.String("url", u.String()), zap.Error(err))
		}
		for _, c := range cookies {
			req.AddCookie(c)
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image fetch status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("image larger than %d bytes", f.maxBytes)
	}
	if len(body) == 0 {
		return "", errors.New("empty response body")
	}

	mimeType := mimetype.Detect(body).String()
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if !strings.HasPrefix(mimeType, "image/") {
		if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
			mimeType = strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
		}
	}

	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(body), nil
}
