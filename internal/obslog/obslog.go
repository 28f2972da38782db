// Package obslog is the ambient leveled logger for chunk, simrun, and
// probe/sqlitesink diagnostics (SPEC_FULL.md's ambient stack; grounded on
// wizardbeard-protogonos's stack: go-isatty gated color, go-humanize
// formatted sizes/counts, go-strftime formatted timestamps).
package obslog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/ncruces/go-strftime"
)

// Level is a diagnostic severity.
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
		return "?"
	}
}

var levelColor = map[Level]string{
	LevelDebug: "\x1b[2m",
	LevelInfo:  "\x1b[36m",
	LevelWarn:  "\x1b[33m",
	LevelError: "\x1b[31m",
}

const colorReset = "\x1b[0m"

// Logger is a minimal leveled logger; the zero value is not usable, use
// New.
type Logger struct {
	out   io.Writer
	min   Level
	color bool
}

// New returns a logger writing lines at min level or above to out,
// colorized only when out is a real terminal.
func New(out io.Writer, min Level) *Logger {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Logger{out: out, min: min, color: color}
}

// Default returns a logger writing to stderr at LevelInfo, the fallback
// chunk, simrun and sqlitesink use when no logger is given.
func Default() *Logger { return New(os.Stderr, LevelInfo) }

func (l *Logger) emit(level Level, msg string) {
	if level < l.min {
		return
	}
	ts := strftime.Format("%Y-%m-%d %H:%M:%S", time.Now())
	tag := level.String()
	if l.color {
		fmt.Fprintf(l.out, "%s%s [%-5s]%s %s\n", levelColor[level], ts, tag, colorReset, msg)
		return
	}
	fmt.Fprintf(l.out, "%s [%-5s] %s\n", ts, tag, msg)
}

func (l *Logger) Debugf(format string, args ...any) { l.emit(LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.emit(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.emit(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.emit(LevelError, fmt.Sprintf(format, args...)) }

// FlushSummary logs a probe/log-sink flush at debug level, with the byte
// count and elapsed time rendered in human-readable form (spec.md §7 "a
// diagnostic is emitted" for IOError adjacent bookkeeping).
func (l *Logger) FlushSummary(sinkName string, bytesWritten int64, rows int, elapsed time.Duration) {
	l.Debugf("%s: flushed %s (%s rows) in %s", sinkName, humanize.Bytes(uint64(bytesWritten)), humanize.Comma(int64(rows)), elapsed.Round(time.Microsecond))
}
