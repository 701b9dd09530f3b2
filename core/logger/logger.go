// Package logger defines the logging interface used across the engine.
// Core packages log through this interface only; the zerolog adapter in
// infra/logger provides the default implementation.
package logger

// Logger exposes leveled logging. Debugw carries structured fields for
// per-item tracing in queue and scoring paths.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
