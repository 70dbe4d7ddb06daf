package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a logging severity.
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
		return "????"
	}
}

var levelColor = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

// Logger writes leveled, key/value structured log lines:
//
//	logger.Info("fast-tier miss", "key", key, "op", "get")
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
	level    atomic.Int32
	ctx      []any
}

var std = New(os.Stderr)

// New builds a Logger writing to w. If w is a terminal, output is
// colorized by level; an AsyncFileWriter (or any other sink) is never
// colorized.
func New(w io.Writer) *Logger {
	l := &Logger{out: w}
	l.level.Store(int32(LevelInfo))
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		l.out = colorable.NewColorable(f)
		l.colorize = true
	}
	return l
}

// SetLevel changes the minimum level that will be emitted.
func (l *Logger) SetLevel(lvl Level) { l.level.Store(int32(lvl)) }

// With returns a child logger that prepends the given key/value pairs
// to every subsequent line.
func (l *Logger) With(kv ...any) *Logger {
	child := &Logger{out: l.out, colorize: l.colorize, ctx: append(append([]any{}, l.ctx...), kv...)}
	child.level.Store(l.level.Load())
	return child
}

func (l *Logger) log(lvl Level, msg string, kv []any) {
	if Level(l.level.Load()) > lvl {
		return
	}
	var b strings.Builder
	ts := time.Now().Format("2006-01-02T15:04:05.000Z0700")
	levelStr := lvl.String()
	if l.colorize {
		levelStr = levelColor[lvl].Sprint(lvl.String())
	}
	fmt.Fprintf(&b, "%s [%s] %s", ts, levelStr, msg)
	all := append(append([]any{}, l.ctx...), kv...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(&b, " %v=%v", all[i], all[i+1])
	}
	if len(all)%2 == 1 {
		fmt.Fprintf(&b, " %v=MISSING", all[len(all)-1])
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.out, b.String())
}

func (l *Logger) Debug(msg string, kv ...any) { l.log(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.log(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.log(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.log(LevelError, msg, kv) }

// SetOutput swaps the default package logger's sink, e.g. to an
// AsyncFileWriter.
func SetOutput(w io.Writer) { std = New(w) }

// SetDefault replaces the package-level logger wholesale.
func SetDefault(l *Logger) { std = l }

func Debug(msg string, kv ...any) { std.Debug(msg, kv...) }
func Info(msg string, kv ...any)  { std.Info(msg, kv...) }
func Warn(msg string, kv ...any)  { std.Warn(msg, kv...) }
func Error(msg string, kv ...any) { std.Error(msg, kv...) }
func With(kv ...any) *Logger      { return std.With(kv...) }
