package transport

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

	"golang.org/x/net/proxy"
)

const (
	// DefaultMaxRedirects caps redirect chains.
	DefaultMaxRedirects = 10

	// checkProxyTimeout bounds the SOCKS5 handshake in CheckProxy.
	checkProxyTimeout = 2 * time.Second
)

// SiteOverrideFunc returns the cookie and extra headers to send to a URL.
type SiteOverrideFunc func(u *url.URL) (cookie string, headers map[string]string)

// Option configures NewHTTPClient.
type Option func(*options)

type options struct {
	timeout      time.Duration
	proxyURL     string
	userAgent    string
	maxRedirects int
	cookie       string
	headers      map[string]string
	siteOverride SiteOverrideFunc
	base         http.RoundTripper
}

// WithTimeout sets the overall timeout of each request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithProxy routes all connections through a SOCKS5 proxy ("socks5://host:port").
// An empty string disables the proxy.
func WithProxy(proxyURL string) Option {
	return func(o *options) { o.proxyURL = proxyURL }
}

// WithUserAgent sets the User-Agent header for requests that carry none.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithMaxRedirects sets the redirect cap. Zero or negative disables redirects.
func WithMaxRedirects(n int) Option {
	return func(o *options) { o.maxRedirects = n }
}

// WithCookie sends cookie with every request.
func WithCookie(cookie string) Option {
	return func(o *options) { o.cookie = cookie }
}

// WithHeaders sends the given headers with every request.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) { o.headers = headers }
}

// WithSiteOverrides resolves cookie and headers per request URL.
func WithSiteOverrides(fn SiteOverrideFunc) Option {
	return func(o *options) { o.siteOverride = fn }
}

// WithBaseTransport replaces the underlying RoundTripper. Mostly for tests.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// NewHTTPClient creates an HTTP client from the given options.
func NewHTTPClient(opts ...Option) (*http.Client, error) {
	o := &options{maxRedirects: DefaultMaxRedirects}
	for _, opt := range opts {
		opt(o)
	}

	base := o.base
	if base == nil {
		t, err := newTransport(o.proxyURL)
		if err != nil {
			return nil, err
		}
		base = t
	}

	var rt http.RoundTripper = base
	if o.userAgent != "" || o.cookie != "" || len(o.headers) > 0 || o.siteOverride != nil {
		rt = &headerInjectingTransport{
			base:         base,
			userAgent:    o.userAgent,
			cookie:       o.cookie,
			headers:      o.headers,
			siteOverride: o.siteOverride,
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	maxRedirects := o.maxRedirects
	return &http.Client{
		Transport: rt,
		Timeout:   o.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

func newTransport(proxyURL string) (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is always *http.Transport
	t.MaxIdleConnsPerHost = 4
	t.IdleConnTimeout = 30 * time.Second

	if proxyURL == "" {
		return t, nil
	}

	dialer, err := ProxyDialer(proxyURL)
	if err != nil {
		return nil, err
	}
	t.Proxy = nil
	t.DialContext = dialContextFunc(dialer)
	return t, nil
}

// ProxyDialer parses a socks5:// URL and returns a dialer for it.
func ProxyDialer(proxyURL string) (proxy.Dialer, error) {
	u, err := url.Parse(proxyURL)
	if err != nil || u.Host == "" || !strings.HasPrefix(u.Scheme, "socks5") {
		return nil, ErrInvalidProxyURL
	}
	dialer, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	return dialer, nil
}

// dialContextFunc adapts a proxy.Dialer to http.Transport.DialContext.
// Dialers without native context support are raced against ctx.Done.
func dialContextFunc(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		resultCh := make(chan dialResult, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			resultCh <- dialResult{conn, err}
		}()
		select {
		case r := <-resultCh:
			return r.conn, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// CheckProxy verifies that a SOCKS5 proxy accepts unauthenticated clients.
func CheckProxy(ctx context.Context, proxyURL string) error {
	u, err := url.Parse(proxyURL)
	if err != nil || u.Host == "" || !strings.HasPrefix(u.Scheme, "socks5") {
		return ErrInvalidProxyURL
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrProxyTimeout
		}
		return fmt.Errorf("%w: %v", ErrProxyCannotConnect, err) //nolint:errorlint // keep the sentinel as the matchable error
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ErrProxyCannotConnect
	}

	// version 5, one method, "no authentication"
	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return ErrProxyCannotConnect
	}
	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrProxyTimeout
		}
		return ErrProxyNotSOCKS5
	}
	if resp[0] != 0x05 || resp[1] != 0x00 {
		return ErrProxyNotSOCKS5
	}
	return nil
}

// headerInjectingTransport adds the user agent, cookies and custom headers
// to every request, including redirects.
type headerInjectingTransport struct {
	base         http.RoundTripper
	userAgent    string
	cookie       string
	headers      map[string]string
	siteOverride SiteOverrideFunc
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	cookie := t.cookie
	if t.siteOverride != nil {
		siteCookie, siteHeaders := t.siteOverride(clone.URL)
		if siteCookie != "" {
			cookie = siteCookie
		}
		for key, value := range siteHeaders {
			clone.Header.Set(key, value)
		}
	}

	if cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+cookie)
		} else {
			clone.Header.Set("Cookie", cookie)
		}
	}

	return t.base.RoundTrip(clone)
}
