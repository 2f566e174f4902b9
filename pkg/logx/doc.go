// Package logx configures topicbot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - Console output is human readable (short timestamp + file:line caller)
//   - File output is JSON, one event per line
//   - An optional Telegram sink forwards WARN+ lines to a chat, rate limited
package logx
