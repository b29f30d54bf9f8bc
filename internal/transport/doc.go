// Package transport builds the HTTP clients used by the crawler, the image
// downloader and the model adapter.
//
// Clients carry a per-request timeout, a cookie jar, a redirect cap and an
// optional SOCKS5 proxy. Per-host cookies and headers from the config file
// are injected by a wrapping RoundTripper so that redirects and image
// requests carry them too.
package transport
