package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func emit(t *testing.T, format logFormat, ctx context.Context, component, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	LogEvent(ctx, slog.New(handler).With("component", component), slog.LevelInfo, event, attrs...)
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	return line
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithConversation(ctx, "chat-7", "user-9")

	line := emit(t, formatKV, ctx, "dispatch", "dispatch.handle",
		slog.String("status", "ok"),
		slog.String("item_id", "widget"),
	)
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=dispatch", "event=dispatch.handle", "status=ok", "rid=rid-123", "conversation_id=chat-7", "actor_id=user-9", "item_id=widget"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	ctx := WithConversation(WithRID(context.Background(), "rid-json"), "c1", "a1")

	line := emit(t, formatJSON, ctx, "inventory", "inventory.adjust",
		slog.String("status", "FAIL"),
		slog.Any("err", errors.New("boom")),
		slog.String("err_code", "STORAGE"),
	)
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"INFO"`, `"component":"inventory"`, `"event":"inventory.adjust"`, `"status":"fail"`, `"rid":"rid-json"`, `"conversation_id":"c1"`, `"err":"boom"`, `"err_code":"STORAGE"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
	if !strings.Contains(line, `"ts_unix_nano"`) {
		t.Fatalf("expected ts_unix_nano in JSON output, got %s", line)
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	rawRID := BuildRID(123, "456")
	ctx := WithRID(context.Background(), rawRID)

	kv := emit(t, formatKV, ctx, "app", "rid.test")
	if !strings.Contains(kv, "rid="+CompactRID(rawRID)) {
		t.Fatalf("expected compact rid, got %s", kv)
	}
	if strings.Contains(kv, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", kv)
	}

	js := emit(t, formatJSON, ctx, "app", "rid.test")
	if !strings.Contains(js, `"rid_full":"`+rawRID+`"`) {
		t.Fatalf("expected rid_full in JSON output, got %s", js)
	}
}

func TestStructuredHandlerRedactsSecrets(t *testing.T) {
	line := emit(t, formatKV, context.Background(), "auth", "auth.pin",
		slog.String("pin", "4321"),
		slog.Group("cfg", slog.String("admin_pin", "4321")),
	)
	if strings.Contains(line, "4321") {
		t.Fatalf("secret leaked into log line: %s", line)
	}
	if !strings.Contains(line, "pin="+redactedValue) {
		t.Fatalf("expected redacted pin, got %s", line)
	}
}

func TestStructuredHandlerDurationAndOutcome(t *testing.T) {
	line := emit(t, formatKV, context.Background(), "dispatch", "dispatch.handle",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.String("outcome", "bogus"),
		slog.Attr{},
	)
	if !strings.Contains(line, "duration_ms=2") {
		t.Fatalf("expected rounded duration_ms, got %s", line)
	}
	if strings.Contains(line, "outcome=") {
		t.Fatalf("unknown outcome should be dropped, got %s", line)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 4)
	allowed := 0
	for i := 0; i < 8; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed = %d, want 2", allowed)
	}

	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("disabled sampler must allow everything")
	}
}

func TestParseRatioSpec(t *testing.T) {
	tests := []struct {
		spec     string
		num, den int
	}{
		{"", 0, 0},
		{"1/10", 1, 10},
		{"25", 1, 25},
		{"x/y", 0, 0},
		{"-3", 0, 0},
	}
	for _, tt := range tests {
		num, den := parseRatioSpec(tt.spec)
		if num != tt.num || den != tt.den {
			t.Fatalf("parseRatioSpec(%q) = %d/%d, want %d/%d", tt.spec, num, den, tt.num, tt.den)
		}
	}
}

func TestAsyncWriterRejectsAfterClose(t *testing.T) {
	aw := newAsyncWriter([]io.Writer{io.Discard}, 0)
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := aw.Write([]byte("late\n")); !errors.Is(err, errWriterClosed) {
		t.Fatalf("expected errWriterClosed, got %v", err)
	}
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("a\x00b​c", 10); got != "abc" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("héllo", 2); got != "hé" {
		t.Fatalf("SanitizeLimit truncation = %q", got)
	}
	if got := FromContext(nil); got != L {
		t.Fatal("FromContext(nil) must return the base logger")
	}
}
