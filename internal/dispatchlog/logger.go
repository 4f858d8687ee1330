// Package dispatchlog provides the structured logger used across the
// dispatcher: level-filtered, text or JSON formatted, with trace IDs
// carried through context.Context.
package dispatchlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Format int

const (
	FormatText Format = iota
	FormatJSON
)

func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}

// Logger is a structured logger with level filtering, file output, and rotation.
type Logger struct {
	mu       sync.Mutex
	level    Level
	format   Format
	out      io.Writer
	file     *os.File
	filePath string
	maxSize  int64
	maxFiles int
	curSize  int64
}

var defaultLogger = New(LevelInfo, FormatText, os.Stderr)

// New creates a Logger writing to the given writer.
func New(level Level, format Format, out io.Writer) *Logger {
	return &Logger{
		level:    level,
		format:   format,
		out:      out,
		maxSize:  50 * 1024 * 1024,
		maxFiles: 5,
	}
}

// SetDefault replaces the package-level logger used by the Debug/Info/Warn/Error
// shortcuts and their *Ctx variants.
func SetDefault(l *Logger) { defaultLogger = l }

// Default returns the current package-level logger.
func Default() *Logger { return defaultLogger }

// WithFile opens filePath for append, rotating at maxSizeMB, keeping maxFiles
// rotated generations. Falls back to stderr if the file cannot be opened.
func (l *Logger) WithFile(filePath string, maxSizeMB, maxFiles int) *Logger {
	l.maxSize = int64(maxSizeMB) * 1024 * 1024
	l.maxFiles = maxFiles
	l.setupFile(filePath)
	return l
}

func (l *Logger) setupFile(filePath string) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "dispatchlog: cannot create log dir %s: %v\n", dir, err)
		return
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dispatchlog: cannot open log file %s: %v\n", filePath, err)
		return
	}
	if info, err := f.Stat(); err == nil {
		l.curSize = info.Size()
	}
	l.file = f
	l.filePath = filePath
	l.out = f
}

func (l *Logger) log(level Level, traceID, msg string, fields ...any) {
	if level < l.level {
		return
	}

	ts := time.Now().UTC().Format(time.RFC3339)
	fieldMap := buildFieldMap(fields)

	var line string
	if l.format == FormatJSON {
		line = formatJSON(ts, level.String(), traceID, msg, fieldMap)
	} else {
		line = formatText(ts, level.String(), traceID, msg, fieldMap)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n, _ := io.WriteString(l.out, line)
	l.curSize += int64(n)

	if l.file != nil && l.maxSize > 0 && l.curSize >= l.maxSize {
		l.rotate()
	}
}

func buildFieldMap(fields []any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	m := make(map[string]any, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", fields[i])
		}
		m[key] = fields[i+1]
	}
	if len(fields)%2 != 0 {
		m["_extra"] = fields[len(fields)-1]
	}
	return m
}

func formatJSON(ts, level, traceID, msg string, fields map[string]any) string {
	entry := make(map[string]any, 5)
	entry["ts"] = ts
	entry["level"] = level
	if traceID != "" {
		entry["traceId"] = traceID
	}
	entry["msg"] = msg
	if len(fields) > 0 {
		entry["fields"] = fields
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"ts":%q,"level":%q,"msg":%q,"error":"marshal failed"}`, ts, level, msg) + "\n"
	}
	return string(b) + "\n"
}

// formatText renders: 2026-02-22T10:30:00Z INFO  [trace-id] message key=val
// (the level is padded to five characters before its separating space).
func formatText(ts, level, traceID, msg string, fields map[string]any) string {
	var sb strings.Builder
	sb.WriteString(ts)
	sb.WriteByte(' ')
	sb.WriteString(level)
	for i := len(level); i < 5; i++ {
		sb.WriteByte(' ')
	}
	sb.WriteByte(' ')
	if traceID != "" {
		sb.WriteByte('[')
		sb.WriteString(traceID)
		sb.WriteString("] ")
	}
	sb.WriteString(msg)
	for k, v := range fields {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(fmt.Sprintf("%v", v))
	}
	sb.WriteByte('\n')
	return sb.String()
}

// rotate shifts app.log -> app.log.1 -> app.log.2 ...
func (l *Logger) rotate() {
	if l.file == nil || l.filePath == "" {
		return
	}
	l.file.Close()

	for i := l.maxFiles - 1; i >= 1; i-- {
		src := l.filePath + fmt.Sprintf(".%d", i)
		dst := l.filePath + fmt.Sprintf(".%d", i+1)
		os.Rename(src, dst)
	}
	os.Remove(l.filePath + fmt.Sprintf(".%d", l.maxFiles))
	os.Rename(l.filePath, l.filePath+".1")

	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.file = nil
		l.out = os.Stderr
		return
	}
	l.file = f
	l.out = f
	l.curSize = 0
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func (l *Logger) Debug(msg string, fields ...any) { l.log(LevelDebug, "", msg, fields...) }
func (l *Logger) Info(msg string, fields ...any)  { l.log(LevelInfo, "", msg, fields...) }
func (l *Logger) Warn(msg string, fields ...any)  { l.log(LevelWarn, "", msg, fields...) }
func (l *Logger) Error(msg string, fields ...any) { l.log(LevelError, "", msg, fields...) }

type traceIDKey struct{}

// WithTraceID returns a context carrying id, retrievable by the *Ctx methods.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

func traceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}

func (l *Logger) DebugCtx(ctx context.Context, msg string, fields ...any) {
	l.log(LevelDebug, traceIDFromContext(ctx), msg, fields...)
}
func (l *Logger) InfoCtx(ctx context.Context, msg string, fields ...any) {
	l.log(LevelInfo, traceIDFromContext(ctx), msg, fields...)
}
func (l *Logger) WarnCtx(ctx context.Context, msg string, fields ...any) {
	l.log(LevelWarn, traceIDFromContext(ctx), msg, fields...)
}
func (l *Logger) ErrorCtx(ctx context.Context, msg string, fields ...any) {
	l.log(LevelError, traceIDFromContext(ctx), msg, fields...)
}

// Package-level shortcuts operating on the default logger.

func Debug(msg string, fields ...any) { defaultLogger.Debug(msg, fields...) }
func Info(msg string, fields ...any)  { defaultLogger.Info(msg, fields...) }
func Warn(msg string, fields ...any)  { defaultLogger.Warn(msg, fields...) }
func Error(msg string, fields ...any) { defaultLogger.Error(msg, fields...) }

func DebugCtx(ctx context.Context, msg string, fields ...any) { defaultLogger.DebugCtx(ctx, msg, fields...) }
func InfoCtx(ctx context.Context, msg string, fields ...any)  { defaultLogger.InfoCtx(ctx, msg, fields...) }
func WarnCtx(ctx context.Context, msg string, fields ...any)  { defaultLogger.WarnCtx(ctx, msg, fields...) }
func ErrorCtx(ctx context.Context, msg string, fields ...any) { defaultLogger.ErrorCtx(ctx, msg, fields...) }
