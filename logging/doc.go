// Package logging provides the minimal Logger interface the runner, session
// manager and tools log through, plus adapters.
//
//   - Logger: Debug/Info/Warn/Error with key/value attributes
//   - SlogAdapter wraps any *slog.Logger
//   - RunLogger adds component, session and run attributes to every record
//   - NoOpLogger discards everything and is the default
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text"})
//	r := runner.New(target, func(o *runner.Options) { o.Logger = logger })
package logging
