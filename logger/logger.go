package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a zerolog logger scoped to a service. Scoping methods return a
// new Logger and leave the receiver untouched.
type Logger struct {
	zl      zerolog.Logger
	service string
}

// New builds a logger from cfg. An unknown level falls back to info.
// New also sets zerolog's global level, which gates every logger.
func New(cfg *Config, serviceName string) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := writerFor(cfg.Output)
	var zl zerolog.Logger
	if isConsole(cfg.Format) {
		zl = zerolog.New(consoleWriter(out, serviceName, cfg.NoColor))
	} else {
		zl = zerolog.New(out)
	}

	ctx := zl.With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return &Logger{zl: ctx.Logger(), service: serviceName}
}

// NewDefault returns an info-level console logger on stdout.
func NewDefault(serviceName string) *Logger {
	return New(&Config{Level: "info", Format: FormatConsole, Output: "stdout", Timestamp: true}, serviceName)
}

// NewWriter returns a debug-level JSON logger writing to w, for tests that
// inspect the records.
func NewWriter(w io.Writer, serviceName string) *Logger {
	return &Logger{zl: zerolog.New(w).Level(zerolog.DebugLevel), service: serviceName}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop(), service: "nop"}
}

type contextKey string

// ContextWithRunID stores an engine run ID for WithContext to pick up.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextKey(FieldRunID), runID)
}

// WithContext copies the trace, run and request IDs found in ctx onto the
// returned logger.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zc := l.zl.With()
	for _, key := range []string{FieldTraceID, FieldRunID, FieldRequestID} {
		if v := ctx.Value(contextKey(key)); v != nil {
			zc = zc.Str(key, fmt.Sprint(v))
		}
	}
	return l.derive(zc)
}

func (l *Logger) WithComponent(name string) *Logger { return l.derive(l.zl.With().Str(FieldComponent, name)) }
func (l *Logger) WithPipeline(name string) *Logger  { return l.derive(l.zl.With().Str(FieldPipeline, name)) }
func (l *Logger) WithFilter(name string) *Logger    { return l.derive(l.zl.With().Str(FieldFilter, name)) }
func (l *Logger) WithError(err error) *Logger       { return l.derive(l.zl.With().Err(err)) }

// WithFields returns a logger carrying fields on every record.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(l.zl.With().Fields(fields))
}

func (l *Logger) derive(zc zerolog.Context) *Logger {
	return &Logger{zl: zc.Logger(), service: l.service}
}

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Error(), msg, fields)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Fatal(), msg, fields)
}

// emit is a no-op for events below the active level, which zerolog
// represents as a nil event.
func emit(e *zerolog.Event, msg string, fields []map[string]interface{}) {
	if e == nil {
		return
	}
	for _, f := range fields {
		e = e.Fields(f)
	}
	e.Msg(msg)
}

// Init installs the logger described by cfg as the package-wide logger and
// points zerolog's own global logger at the same console format.
func Init(cfg *Config) {
	cfg.ApplyDefaults()
	name := cfg.ServiceName
	if name == "" {
		name = "default"
	}
	SetGlobalLogger(New(cfg, name))
	if isConsole(cfg.Format) {
		log.Logger = zerolog.New(consoleWriter(writerFor(cfg.Output), name, cfg.NoColor)).With().Timestamp().Logger()
	}
}

func writerFor(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}
