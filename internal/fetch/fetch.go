// Package fetch downloads article pages with realistic headers, a fallback
// identity for picky sites, and AMP variants for hard 4xx responses.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"osmon/internal/logger"
	"osmon/internal/retry"
)

const (
	uaChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"
	uaFirefox = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) " +
		"Gecko/20100101 Firefox/128.0"

	maxBodyBytes = 4 << 20
)

// Client fetches HTML pages with bounded timeouts and retries.
type Client struct {
	http    *http.Client
	retries int
	backoff time.Duration
}

// New builds a Client. Timeout bounds every request; transient failures are
// retried up to retries times with exponential backoff.
func New(timeout time.Duration, retries int, backoff time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		retries: retries,
		backoff: backoff,
	}
}

// Page returns the HTML body of url, or an error when no variant produced a
// usable page. 403s are retried with a different identity; 401/403/404 fall
// back to AMP variants.
func (c *Client) Page(ctx context.Context, pageURL string) (string, error) {
	body, status, err := c.get(ctx, pageURL, primaryHeaders(pageURL))
	if err == nil && body != "" {
		return body, nil
	}

	if status == http.StatusForbidden {
		body, status, err = c.get(ctx, pageURL, fallbackHeaders())
		if err == nil && body != "" {
			return body, nil
		}
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound {
		for _, amp := range ampVariants(pageURL) {
			body, _, ampErr := c.get(ctx, amp, primaryHeaders(pageURL))
			if ampErr == nil && body != "" {
				logger.Info("using AMP variant", "url", pageURL, "amp", amp)
				return body, nil
			}
		}
	}

	if err == nil {
		err = fmt.Errorf("no usable HTML from %s (status %d)", pageURL, status)
	}
	return "", err
}

// get performs one logical fetch with retries on transient failures. Returns
// the body only for 200 responses with an HTML content type.
func (c *Client) get(ctx context.Context, pageURL string, headers map[string]string) (string, int, error) {
	var body string
	var status int

	err := retry.Do(ctx, retry.Config{MaxAttempts: c.retries, Delay: c.backoff, Backoff: true}, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		switch {
		case status == http.StatusOK:
			ct := strings.ToLower(resp.Header.Get("Content-Type"))
			if !strings.HasPrefix(ct, "text/html") && !strings.HasPrefix(ct, "application/xhtml") {
				return retry.Permanent(fmt.Errorf("unsupported content type %q", ct))
			}
			raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return err
			}
			body = string(raw)
			return nil
		case status == http.StatusTooManyRequests || status >= 500:
			return fmt.Errorf("transient status %d from %s", status, pageURL)
		default:
			// Other 4xx responses are not worth retrying.
			return retry.Permanent(fmt.Errorf("status %d from %s", status, pageURL))
		}
	})
	if err != nil {
		return "", status, err
	}
	return body, status, nil
}

func primaryHeaders(pageURL string) map[string]string {
	referer := origin(pageURL)
	if referer == "" {
		referer = "https://www.google.com/"
	}
	return map[string]string{
		"User-Agent":      uaChrome,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
		"Referer":         referer,
	}
}

func fallbackHeaders() map[string]string {
	h := primaryHeaders("")
	h["User-Agent"] = uaFirefox
	h["Referer"] = "https://news.google.com/"
	return h
}

func origin(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func ampVariants(pageURL string) []string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	withSlash := *u
	if !strings.HasSuffix(withSlash.Path, "/") {
		withSlash.Path += "/"
	}
	withSlash.Path += "amp/"

	ampQuery := *u
	ampQuery.RawQuery = "amp=1"

	outputType := *u
	outputType.RawQuery = "outputType=amp"

	return []string{withSlash.String(), ampQuery.String(), outputType.String()}
}
