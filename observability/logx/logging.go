package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Swind/go-tick-runner/core"
)

// ---- Config ----

type Config struct {
	Level   string
	Console bool
	File    FileConfig

	// WarnPerSecond throttles Warn lines. Zero disables throttling.
	WarnPerSecond int
}

type FileConfig struct {
	Enabled bool
	Path    string

	// Rotation, passed to lumberjack. Zero values use lumberjack defaults.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

const (
	consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"
	defaultLogPath    = "./tickrun.log"
)

// ---- Logger ----

// Logger is a zerolog-backed core.Logger.
//
// Zero value is not usable; use New, NewWithWriter or FromZerolog.
type Logger struct {
	zl       zerolog.Logger
	closer   io.Closer
	throttle *warnThrottle
}

var _ core.Logger = (*Logger)(nil)

type warnThrottle struct {
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

// New builds a logger writing to the console and/or a rotating file.
// With neither sink enabled it falls back to the console.
func New(cfg Config) (*Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	writers := make([]io.Writer, 0, 2)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	var closer io.Closer
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogPath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("logx: create log dir for %q: %w", path, err)
		}
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		closer = lj
		writers = append(writers, lj)
	}

	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	l := &Logger{zl: zl, closer: closer}
	return l.WithWarnLimit(cfg.WarnPerSecond), nil
}

// NewWithWriter builds a JSON logger over w. Unknown levels fall back to info.
func NewWithWriter(w io.Writer, level string) *Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return FromZerolog(zerolog.New(w).Level(lvl).With().Timestamp().Logger())
}

// FromZerolog wraps an existing zerolog logger.
func FromZerolog(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// WithWarnLimit returns l with Warn lines limited to perSecond. Lines over the
// limit are dropped and their count is attached to the next line that passes.
func (l *Logger) WithWarnLimit(perSecond int) *Logger {
	if perSecond <= 0 {
		l.throttle = nil
		return l
	}
	l.throttle = &warnThrottle{limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
	return l
}

// Zerolog returns the underlying zerolog logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

// Close closes the file sink, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) Debug(msg string, fields ...core.Field) { l.log(zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...core.Field)  { l.log(zerolog.InfoLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...core.Field) { l.log(zerolog.ErrorLevel, msg, fields) }

func (l *Logger) Warn(msg string, fields ...core.Field) {
	var suppressed int64
	if t := l.throttle; t != nil {
		if !t.limiter.Allow() {
			t.suppressed.Add(1)
			return
		}
		suppressed = t.suppressed.Swap(0)
	}
	if suppressed > 0 {
		fields = append(fields, core.F("suppressed", suppressed))
	}
	l.log(zerolog.WarnLevel, msg, fields)
}

func (l *Logger) log(level zerolog.Level, msg string, fields []core.Field) {
	e := l.zl.WithLevel(level)
	if e == nil {
		return
	}

	// Caller: keep it short (file:line)
	if caller := shortCaller(3); caller != "" {
		e.Str(zerolog.CallerFieldName, caller)
	}
	for _, f := range fields {
		applyField(e, f)
	}
	e.Msg(msg)
}

func applyField(e *zerolog.Event, f core.Field) {
	switch v := f.Value.(type) {
	case nil:
		e.Interface(f.Key, nil)
	case string:
		e.Str(f.Key, v)
	case int:
		e.Int(f.Key, v)
	case int64:
		e.Int64(f.Key, v)
	case uint64:
		e.Uint64(f.Key, v)
	case float64:
		e.Float64(f.Key, v)
	case bool:
		e.Bool(f.Key, v)
	case time.Duration:
		e.Dur(f.Key, v)
	case time.Time:
		e.Time(f.Key, v)
	case error:
		e.AnErr(f.Key, v)
	case fmt.Stringer:
		e.Str(f.Key, v.String())
	default:
		e.Interface(f.Key, v)
	}
}

func shortCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || file == "" {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("logx: unknown level %q", s)
	}
}
