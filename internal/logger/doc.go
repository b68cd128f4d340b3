// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and configuration,
//   - convenience functions (Infof, InfoKV, WarnKV, etc.).
//
// Every service accepts a context and extracts the logger from it, so log
// lines carry the command name and run identifiers set by the caller.
package logger
