package utils

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func testClientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.BackoffFactor = time.Millisecond
	cfg.Timeout = 2 * time.Second
	return cfg
}

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u.Host
}

func TestRetryOnRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	client := NewRetryClient(testClientConfig(), "")
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestRetryExhaustedReturnsRetryError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testClientConfig()
	cfg.MaxRetries = 2
	_, err := NewRetryClient(cfg, "").Get(srv.URL)
	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected RetryError, got %v", err)
	}
	if retryErr.StatusCode != http.StatusNotFound || retryErr.Attempts != 3 {
		t.Errorf("got %+v, want status 404 after 3 attempts", retryErr)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestNonRetryableStatusReturnedAsIs(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	resp, err := NewRetryClient(testClientConfig(), "").Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestBearerTokenScopedToHost(t *testing.T) {
	var storageAuth atomic.Value
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storageAuth.Store(r.Header.Get("Authorization"))
		io.WriteString(w, "blob")
	}))
	defer storage.Close()

	var hubAuth atomic.Value
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hubAuth.Store(r.Header.Get("Authorization"))
		http.Redirect(w, r, storage.URL+"/blob", http.StatusFound)
	}))
	defer hub.Close()

	cfg := testClientConfig()
	cfg.AuthToken = "hf_secret"
	client := NewRetryClient(cfg, hostOf(t, hub.URL))
	resp, err := client.Get(hub.URL + "/file")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if got := hubAuth.Load(); got != "Bearer hf_secret" {
		t.Errorf("hub Authorization = %q", got)
	}
	if got := storageAuth.Load(); got != "" {
		t.Errorf("storage Authorization = %q, want empty", got)
	}
}

func TestUserAgentSet(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	resp, err := NewRetryClient(testClientConfig(), "").Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if got := agent.Load(); got != ToolUserAgent {
		t.Errorf("User-Agent = %q, want %q", got, ToolUserAgent)
	}
}

func TestNoRedirectReturns3xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	resp, err := NoRedirect(NewRetryClient(testClientConfig(), "")).Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", resp.StatusCode)
	}
}

func TestIdleTimeoutRetriesStalledAttempt(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()
	defer close(release)

	cfg := testClientConfig()
	cfg.Timeout = 100 * time.Millisecond
	resp, err := NewRetryClient(cfg, "").Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestCancelledContextStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testClientConfig()
	cfg.BackoffFactor = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	start := time.Now()
	_, err := NewRetryClient(cfg, "").Do(req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("retry loop ignored cancellation")
	}
}

func TestProxyReceivesRequestWithCredentials(t *testing.T) {
	tests := []struct {
		name     string
		userInfo string
		username string
		password string
		want     string
	}{
		{name: "flags", username: "alice", password: "secret", want: "alice:secret"},
		{name: "url", userInfo: "bob:hunter2@", username: "ignored", password: "ignored", want: "bob:hunter2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotHost string
			proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Proxy-Authorization")
				gotHost = r.Host
				io.WriteString(w, "via proxy")
			}))
			defer proxy.Close()

			cfg := testClientConfig()
			cfg.ProxyURL = "http://" + tt.userInfo + hostOf(t, proxy.URL)
			cfg.ProxyUsername = tt.username
			cfg.ProxyPassword = tt.password
			resp, err := NewRetryClient(cfg, "").Get("http://mirror.invalid/model/resolve/main/a.bin")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if string(body) != "via proxy" {
				t.Errorf("body = %q, want via proxy", body)
			}
			if gotHost != "mirror.invalid" {
				t.Errorf("proxied host = %q, want mirror.invalid", gotHost)
			}
			want := "Basic " + base64.StdEncoding.EncodeToString([]byte(tt.want))
			if gotAuth != want {
				t.Errorf("Proxy-Authorization = %q, want %q", gotAuth, want)
			}
		})
	}
}

func TestInvalidProxyFallsBackToEnvironment(t *testing.T) {
	cfg := testClientConfig()
	cfg.ProxyURL = "::not a url"
	req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1/x", nil)
	if u, err := proxyFunc(cfg)(req); err != nil || u != nil {
		t.Errorf("got %v, %v; want no proxy for loopback", u, err)
	}
}

func TestCustomHeadersSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "session=abc" {
			t.Errorf("Cookie = %q, want session=abc", r.Header.Get("Cookie"))
		}
		if r.Header.Get("X-Request-Source") != "explicit" {
			t.Errorf("X-Request-Source = %q, want explicit", r.Header.Get("X-Request-Source"))
		}
	}))
	defer srv.Close()

	cfg := testClientConfig()
	cfg.Headers = map[string]string{"Cookie": "session=abc", "X-Request-Source": "flag"}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("X-Request-Source", "explicit")
	resp, err := NewRetryClient(cfg, "").Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
}
