package transport

import "errors"

var (
	// ErrInvalidProxyURL is returned when a proxy URL is not socks5://host:port.
	ErrInvalidProxyURL = errors.New("invalid proxy URL: expected socks5://host:port")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy can be made.
	ErrProxyCannotConnect = errors.New("cannot connect to SOCKS5 proxy")

	// ErrProxyNotSOCKS5 is returned when the proxy answers but does not speak SOCKS5.
	ErrProxyNotSOCKS5 = errors.New("proxy does not speak SOCKS5")

	// ErrProxyTimeout is returned when the proxy handshake times out.
	ErrProxyTimeout = errors.New("timeout connecting to SOCKS5 proxy")
)
