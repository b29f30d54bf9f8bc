// Package log provides secure logging built on top of log/slog.
//
// The SecureHandler masks sensitive information before it reaches the
// underlying handler:
//   - HTTP headers (Authorization, Cookie, X-Api-Key)
//   - model provider API keys ("sk-...") and bearer tokens
//   - credentials embedded in URLs (user:password@, ?api_key=...)
//
// Even in verbose mode, sensitive values are masked so that logs of agent
// runs can be shared without leaking the keys used to run them.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//	logger.Info("request sent",
//	    "authorization", "Bearer sk-...",  // masked
//	    "url", "https://api.example.com/v1/chat/completions",
//	)
//
// Components never read a package-global logger; they receive a
// *slog.Logger through their WithLogger option.
package log
