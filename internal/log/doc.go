// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Sanitization of sensitive attribute values (cookies, tokens, secrets)
//   - Scrubbing of credentials embedded in URLs
//   - Configurable log levels with verbose mode support
//
// # Security Features
//
// The SecureHandler sanitizes sensitive information in log output:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - Secret values detected by pattern matching (bearer tokens, JWTs, keys)
//   - URL passwords, as in redis://:secret@cache:6379/0
//   - Signed or keyed query parameters, as in ?token=... or ?sig=...
//
// Crawled sites sometimes link signed download URLs, and ledger and broker
// addresses may carry passwords, so even verbose logs stay safe to share.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	logger.Info("visiting",
//	    "url", "https://a.edu/file?token=abc", // logged as token=REDACTED
//	    "cookie", "session=abc123",            // logged as ***REDACTED***
//	)
//
//	slog.SetDefault(logger)
package log
