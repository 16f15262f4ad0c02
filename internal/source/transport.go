package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	httpTimeout = 30 * time.Second
	userAgent   = "leaguenews/1.0 (+https://github.com/ppiankov/leaguenews)"
)

// pacedTransport sets the User-Agent and waits on a limiter before every request.
type pacedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
	agent   string
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}

// newHTTPClient returns a client paced to one request per interval.
// A zero interval disables pacing.
func newHTTPClient(interval time.Duration, agent string) *http.Client {
	var limiter *rate.Limiter
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &http.Client{
		Timeout: httpTimeout,
		Transport: &pacedTransport{
			base:    http.DefaultTransport,
			limiter: limiter,
			agent:   agent,
		},
	}
}

// StatusError is a non-2xx response from an external API.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.URL, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.URL, e.Code, e.Body)
}

// getJSON performs req and decodes a 2xx JSON body into v.
func getJSON(client *http.Client, req *http.Request, v any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, URL: req.URL.Path, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func newGet(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
