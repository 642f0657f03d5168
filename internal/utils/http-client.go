package utils

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// NewRetryClient builds the shared client. Retries and the per-attempt
// timeout live in the transport, so the client itself has no overall timeout.
func NewRetryClient(cfg ClientConfig, authHost string) *http.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryableStatus == nil {
		cfg.RetryableStatus = DefaultRetryableStatus()
	}
	base := &http.Transport{
		Proxy: proxyFunc(cfg),
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		DisableCompression:    true,
	}
	var transport http.RoundTripper = &retryTransport{base: base, cfg: cfg}
	if cfg.AuthToken != "" {
		transport = &scopedAuthTransport{
			host: authHost,
			base: transport,
			authed: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AuthToken, TokenType: "Bearer"}),
				Base:   transport,
			},
		}
	}
	return &http.Client{Transport: transport}
}

// proxyFunc uses the configured proxy, with credentials from the flags when
// the URL carries none, and falls back to the environment.
func proxyFunc(cfg ClientConfig) func(*http.Request) (*url.URL, error) {
	if cfg.ProxyURL == "" {
		return http.ProxyFromEnvironment
	}
	proxyURL, err := url.Parse(cfg.ProxyURL)
	if err != nil || proxyURL.Host == "" {
		log.Warn().Str("op", "utils/http-client").Msgf("Ignoring invalid proxy URL %q", cfg.ProxyURL)
		return http.ProxyFromEnvironment
	}
	if proxyURL.User == nil && cfg.ProxyUsername != "" {
		if cfg.ProxyPassword != "" {
			proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
		} else {
			proxyURL.User = url.User(cfg.ProxyUsername)
		}
	}
	log.Debug().Str("op", "utils/http-client").Msgf("Using proxy %s", proxyURL.Redacted())
	return http.ProxyURL(proxyURL)
}

// NoRedirect returns a copy of client that hands 3xx responses back to the caller.
func NoRedirect(client *http.Client) *http.Client {
	c := *client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

// scopedAuthTransport only sends the token to the configured host, so
// redirects onto storage hosts do not leak it. An empty host means every request.
type scopedAuthTransport struct {
	host   string
	base   http.RoundTripper
	authed http.RoundTripper
}

func (t *scopedAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.host != "" && req.URL.Host != t.host {
		return t.base.RoundTrip(req)
	}
	return t.authed.RoundTrip(req)
}

type retryTransport struct {
	base http.RoundTripper
	cfg  ClientConfig
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	maxRetries := t.cfg.MaxRetries
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		maxRetries = 0
	}
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			wait := t.cfg.BackoffFactor * time.Duration(1<<uint(attempt-1))
			log.Debug().Str("op", "utils/http-client").Msgf("Retrying %s %s (attempt %d/%d) in %s", req.Method, req.URL, attempt+1, maxRetries+1, wait)
			if err := sleepContext(req.Context(), wait); err != nil {
				return nil, err
			}
		}
		resp, err := t.attempt(req, attempt)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			lastErr = err
			log.Warn().Str("op", "utils/http-client").Err(err).Msgf("Request attempt %d failed for %s", attempt+1, req.URL)
			if attempt < maxRetries {
				continue
			}
			return nil, lastErr
		}
		if t.cfg.RetryableStatus[resp.StatusCode] {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			log.Warn().Str("op", "utils/http-client").Msgf("Retryable status %d for %s", resp.StatusCode, req.URL)
			if attempt < maxRetries {
				continue
			}
			return nil, &RetryError{StatusCode: resp.StatusCode, Attempts: attempt + 1}
		}
		return resp, nil
	}
}

// attempt sends one try with its own idle timeout. The timer covers connect
// and response headers, then restarts around every body read.
func (t *retryTransport) attempt(req *http.Request, attempt int) (*http.Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	timer := time.AfterFunc(t.cfg.Timeout, cancel)
	try := req.Clone(ctx)
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			timer.Stop()
			cancel()
			return nil, err
		}
		try.Body = body
	}
	for key, value := range t.cfg.Headers {
		if try.Header.Get(key) == "" {
			try.Header.Set(key, value)
		}
	}
	if try.Header.Get("User-Agent") == "" && t.cfg.UserAgent != "" {
		try.Header.Set("User-Agent", t.cfg.UserAgent)
	}
	resp, err := t.base.RoundTrip(try)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, err
	}
	body := &idleTimeoutBody{rc: resp.Body, timer: timer, timeout: t.cfg.Timeout, cancel: cancel}
	timer.Reset(t.cfg.Timeout)
	resp.Body = body
	return resp, nil
}

type idleTimeoutBody struct {
	rc      io.ReadCloser
	timer   *time.Timer
	timeout time.Duration
	cancel  context.CancelFunc
	once    sync.Once
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	b.timer.Reset(b.timeout)
	n, err := b.rc.Read(p)
	b.timer.Stop()
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	var err error
	b.once.Do(func() {
		b.timer.Stop()
		err = b.rc.Close()
		b.cancel()
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
