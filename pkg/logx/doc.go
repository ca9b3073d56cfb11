// Package logx configures remindbot's structured logging.
//
// A small wrapper (logx.Logger) sits on top of zerolog so that:
//   - console output stays readable (short timestamp + short caller)
//   - file output stays JSON-structured
//   - warn/error lines can optionally be mirrored to an ops chat (min-level + rate limiting)
package logx
