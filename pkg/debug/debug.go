// Package debug provides category-based debug logging.
//
// Two orthogonal controls:
//   - Categories (WHAT to debug): NEURO_DEBUG env or logging.debug config
//   - Levels (HOW MUCH detail): NEURO_LOG_LEVEL env or logging.level config
//
// Usage:
//
//	debug.Log("providers", "request", "method", "POST", "url", url)
//	if debug.Enabled("providers") { /* expensive formatting */ }
//
// Categories: providers, snapshot, exercise, agent, all.
// Levels: ERROR, WARN, INFO, DEBUG, TRACE.
package debug

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
// At TRACE, provider request and response bodies are logged.
const LevelTrace = slog.LevelDebug - 4

// maxBody bounds the body excerpt logged at TRACE.
const maxBody = 2048

// categories is read-only after Init.
var categories map[string]bool

func init() {
	categories = parseCategories(os.Getenv("NEURO_DEBUG"))
}

// Init configures categories and the default slog handler from config
// values. Environment variables override config.
func Init(configCategories, configLevel string) {
	cats := os.Getenv("NEURO_DEBUG")
	if cats == "" {
		cats = configCategories
	}
	categories = parseCategories(cats)

	level := os.Getenv("NEURO_LOG_LEVEL")
	if level == "" {
		level = configLevel
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})))
}

// Enabled reports whether debug output is active for the given category.
func Enabled(category string) bool {
	return categories["all"] || categories[category]
}

// Log emits a debug message for the given category.
// If the category is not enabled, this is a no-op.
func Log(category string, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Body logs a truncated payload at TRACE for the given category.
func Body(category, msg string, body []byte) {
	if !TraceIsEnabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, "debug", category, "body", Truncate(string(body), maxBody))
}

// TraceIsEnabled reports whether TRACE level is active for the given category.
func TraceIsEnabled(category string) bool {
	if !Enabled(category) {
		return false
	}
	return slog.Default().Enabled(context.Background(), LevelTrace)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
