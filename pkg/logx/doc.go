// Package logx wraps zerolog behind a small structured-logging API.
//
// It exists so that domain packages depend on a stable Logger value type
// (safe zero value, cheap With()) instead of a concrete zerolog.Logger.
package logx
