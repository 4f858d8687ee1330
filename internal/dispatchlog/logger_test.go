package dispatchlog

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelInfo, FormatText, &buf)

	l.Debug("should not appear")
	l.Info("should appear")
	l.Warn("also appears")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("info message should appear at info level")
	}
	if !strings.Contains(out, "also appears") {
		t.Error("warn message should appear at info level")
	}
}

func TestLogger_LevelDebugPassesAll(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelDebug, FormatText, &buf)

	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")

	out := buf.String()
	for _, msg := range []string{"d", "i", "w", "e"} {
		if !strings.Contains(out, msg) {
			t.Errorf("message %q should appear at debug level", msg)
		}
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelInfo, FormatJSON, &buf)

	l.Info("test message", "key1", "val1", "key2", 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\nbuf: %s", err, buf.String())
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want 'test message'", entry["msg"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok {
		t.Fatal("fields not present or not a map")
	}
	if fields["key1"] != "val1" {
		t.Errorf("fields.key1 = %v, want val1", fields["key1"])
	}
	if fields["key2"] != float64(42) {
		t.Errorf("fields.key2 = %v, want 42", fields["key2"])
	}
}

func TestLogger_TraceIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelInfo, FormatText, &buf)
	ctx := WithTraceID(context.Background(), "trace-abc")

	l.InfoCtx(ctx, "hello")

	out := buf.String()
	if !strings.Contains(out, "[trace-abc]") {
		t.Errorf("output missing trace id: %s", out)
	}
}

func TestLogger_OddFieldCount(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelInfo, FormatJSON, &buf)

	l.Info("msg", "key1", "val1", "dangling")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	fields := entry["fields"].(map[string]any)
	if fields["_extra"] != "dangling" {
		t.Errorf("_extra = %v, want dangling", fields["_extra"])
	}
}

func TestDefaultLogger_PackageShortcuts(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(LevelDebug, FormatText, &buf))
	defer SetDefault(prev)

	Info("package level info")
	if !strings.Contains(buf.String(), "package level info") {
		t.Error("Info shortcut did not write through the default logger")
	}
}
