// Package moex talks to the Moscow Exchange: the ISS JSON API for daily
// closes and candles, the moex.com capitalization pages and the
// spreadsheet exports for free float and dividend yields.
package moex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/seenimoa/moexidx/internal/infra"
)

// DefaultUserAgent is the user agent sent with every request.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// ErrHTTP wraps an HTTP error with status code.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// fetcher is the shared transport: one http.Client, one rate limiter and
// an optional cookie jar filled by passport authentication.
type fetcher struct {
	client  *http.Client
	limiter *rate.Limiter

	mu      sync.RWMutex
	cookies []*http.Cookie
}

func newFetcher(timeout time.Duration, ratePerSec int) *fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &fetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: infra.NewRateLimiter(ratePerSec),
	}
}

// get performs a rate-limited GET and returns the response body.
// The caller is responsible for closing the returned ReadCloser.
func (f *fetcher) get(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	f.mu.RLock()
	for _, c := range f.cookies {
		req.AddCookie(c)
	}
	f.mu.RUnlock()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &ErrHTTP{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}
	return resp.Body, nil
}

// authenticate logs in to the MOEX passport with basic auth and keeps the
// returned cookies for later requests.
func (f *fetcher) authenticate(ctx context.Context, passportURL, user, password string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, passportURL, nil)
	if err != nil {
		return fmt.Errorf("create passport request: %w", err)
	}
	req.SetBasicAuth(user, password)
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("passport: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &ErrHTTP{StatusCode: resp.StatusCode, Status: resp.Status, Body: "passport authentication failed"}
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return fmt.Errorf("passport: no session cookie returned")
	}
	f.mu.Lock()
	f.cookies = cookies
	f.mu.Unlock()
	return nil
}

// parseNumber parses a localized number such as "1 234 567,89" or "48,5 %".
func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '%', '\t':
			return -1
		case ',':
			return '.'
		}
		return r
	}, s)
	if s == "" || s == "-" || s == "\u2014" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	return decimal.NewFromString(s)
}
