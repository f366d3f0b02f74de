package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

var allowedStatus = map[string]struct{}{
	"ok":           {},
	"fail":         {},
	"skip":         {},
	"retry":        {},
	"rate_limited": {},
	"cancelled":    {},
	"rejected":     {},
}

var allowedOutcome = map[string]struct{}{
	"ok":        {},
	"fail":      {},
	"cancelled": {},
	"rejected":  {},
	"reprompt":  {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeEnum(value string, allowed map[string]struct{}) (string, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", false
	}
	_, ok := allowed[value]
	return value, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"conversation_id",
	"actor_id",
	"handler",
	"command",
	"mode",
	"next_mode",
	"outcome",
	"duration_ms",
	"item_id",
	"action",
	"delta",
	"quantity",
	"count",
	"limit",
	"attempts",
	"locked_until",
	"elevated_until",
	"expired",
	"payload_len",
	"driver",
	"db",
	"host",
	"port",
	"listen",
	"public_url",
	"mode_tg",
	"http_code",
	"err",
	"err_code",
	"cause",
	"retryable",
	"backoff_ms",
}
