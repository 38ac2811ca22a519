// Package logging provides a minimal logging interface and adapters for sleuth.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the cache, tool registry, agents and supervisor use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - ZerologAdapter wrapping zerolog (the default for the CLI)
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.New(logging.Config{Level: "debug", Pretty: true})
//	s, err := sleuth.New(gw, func(o *sleuth.Options) { o.Logger = logger })
//
// Messages are dotted event names ("agent.iteration.start") followed by
// alternating key/value pairs.
package logging
