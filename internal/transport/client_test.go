package transport

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	t.Run("applies timeout and cookie jar", func(t *testing.T) {
		t.Parallel()

		client, err := NewHTTPClient(WithTimeout(5 * time.Second))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want 5s", client.Timeout)
		}
		if client.Jar == nil {
			t.Error("expected cookie jar")
		}
	})

	t.Run("socks5 proxy URL is accepted", func(t *testing.T) {
		t.Parallel()

		if _, err := NewHTTPClient(WithProxy("socks5://127.0.0.1:1080")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("http proxy URL is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTPClient(WithProxy("http://127.0.0.1:8080"))
		if !errors.Is(err, ErrInvalidProxyURL) {
			t.Errorf("expected ErrInvalidProxyURL, got %v", err)
		}
	})
}

func TestHeaderInjection(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(
		WithUserAgent("owlpair-test"),
		WithCookie("global=1"),
		WithHeaders(map[string]string{"X-Global": "g", "X-Shared": "global"}),
		WithSiteOverrides(func(u *url.URL) (string, map[string]string) {
			if u.Hostname() == "127.0.0.1" {
				return "site=2", map[string]string{"X-Shared": "site"}
			}
			return "", nil
		}),
	)
	if err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got.Get("User-Agent") != "owlpair-test" {
		t.Errorf("User-Agent = %q", got.Get("User-Agent"))
	}
	if got.Get("X-Global") != "g" {
		t.Errorf("X-Global = %q", got.Get("X-Global"))
	}
	if got.Get("X-Shared") != "site" {
		t.Errorf("site header should override global header, got %q", got.Get("X-Shared"))
	}
	if got.Get("Cookie") != "site=2" {
		t.Errorf("Cookie = %q, want site=2", got.Get("Cookie"))
	}
}

func TestHeaderInjectingTransportKeepsOriginalRequest(t *testing.T) {
	t.Parallel()

	rt := &headerInjectingTransport{
		base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get("X-Test") != "1" {
				t.Errorf("header not injected")
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
		}),
		headers: map[string]string{"X-Test": "1"},
	}

	req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://example.com", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	if req.Header.Get("X-Test") != "" {
		t.Error("original request must not be modified")
	}
}

func TestRedirectCap(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, srv.URL+"/next", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(WithMaxRedirects(2))
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("expected last redirect response, got %d", resp.StatusCode)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}
}

func TestCheckProxy(t *testing.T) {
	t.Parallel()

	serve := func(t *testing.T, reply []byte) string {
		t.Helper()
		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatalf("failed to start mock server: %v", err)
		}
		t.Cleanup(func() { listener.Close() })

		go func() {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write(reply)
		}()
		return "socks5://" + listener.Addr().String()
	}

	t.Run("accepts a SOCKS5 proxy without auth", func(t *testing.T) {
		t.Parallel()
		if err := CheckProxy(t.Context(), serve(t, []byte{0x05, 0x00})); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("rejects a non-SOCKS5 server", func(t *testing.T) {
		t.Parallel()
		err := CheckProxy(t.Context(), serve(t, []byte("HTTP/1.1 200 OK\r\n\r\n")))
		if !errors.Is(err, ErrProxyNotSOCKS5) {
			t.Errorf("expected ErrProxyNotSOCKS5, got %v", err)
		}
	})

	t.Run("rejects a proxy requiring auth", func(t *testing.T) {
		t.Parallel()
		err := CheckProxy(t.Context(), serve(t, []byte{0x05, 0xFF}))
		if !errors.Is(err, ErrProxyNotSOCKS5) {
			t.Errorf("expected ErrProxyNotSOCKS5, got %v", err)
		}
	})

	t.Run("reports unreachable proxy", func(t *testing.T) {
		t.Parallel()
		err := CheckProxy(t.Context(), "socks5://127.0.0.1:1")
		if !errors.Is(err, ErrProxyCannotConnect) && !errors.Is(err, ErrProxyTimeout) {
			t.Errorf("expected connect error, got %v", err)
		}
	})

	t.Run("rejects malformed URL", func(t *testing.T) {
		t.Parallel()
		if err := CheckProxy(t.Context(), "127.0.0.1:1080"); !errors.Is(err, ErrInvalidProxyURL) {
			t.Errorf("expected ErrInvalidProxyURL, got %v", err)
		}
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
