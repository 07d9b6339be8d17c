// Package logging implements the process-wide leveled log sink: a
// bounded in-memory ring of formatted lines guarded by a single mutex,
// with an optional stdout mirror gated by a level threshold.
package logging

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Level is a log severity. The " INFO" label carries a single leading
// space so all three labels render the same width and log lines stay
// tabular.
type Level int

const (
	Debug Level = iota
	Info
	Error
)

func (l Level) label() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return " INFO"
	case Error:
		return "ERROR"
	default:
		return "?????"
	}
}

// DefaultCapacity is the default number of lines the ring retains.
const DefaultCapacity = 1000

// Entry is one logged line.
type Entry struct {
	Time     time.Time
	Level    Level
	Message  string
	Site     string // optional "file:line (func)" trailer
	Rendered string
}

// Logger is a bounded, mutex-guarded ring buffer of Entry values.
type Logger struct {
	mu        sync.Mutex
	lines     []Entry
	capacity  int
	threshold Level
	mirror    bool
}

// New returns a Logger with the given capacity (DefaultCapacity if cap<=0)
// that mirrors lines at or above threshold to stdout when mirror is true.
func New(capacity int, threshold Level, mirror bool) *Logger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Logger{
		lines:     make([]Entry, 0, capacity),
		capacity:  capacity,
		threshold: threshold,
		mirror:    mirror,
	}
}

// log appends an entry, evicting the oldest line once at capacity, and
// mirrors to stdout if the level meets the threshold.
func (l *Logger) log(level Level, site, message string) {
	entry := Entry{Time: time.Now().UTC(), Level: level, Message: message, Site: site}
	entry.Rendered = render(entry)

	l.mu.Lock()
	if len(l.lines) >= l.capacity {
		copy(l.lines, l.lines[1:])
		l.lines = l.lines[:len(l.lines)-1]
	}
	l.lines = append(l.lines, entry)
	l.mu.Unlock()

	if l.mirror && level >= l.threshold {
		fmt.Fprintln(os.Stdout, entry.Rendered)
	}
}

func render(e Entry) string {
	ts := e.Time.Format("2006-01-02, 15:04:05.000")
	if e.Site != "" {
		return fmt.Sprintf("%s [%s] %s (%s)", ts, e.Level.label(), e.Message, e.Site)
	}
	return fmt.Sprintf("%s [%s] %s", ts, e.Level.label(), e.Message)
}

// Debugf logs at Debug level.
func (l *Logger) Debugf(format string, args ...any) {
	l.log(Debug, "", fmt.Sprintf(format, args...))
}

// Infof logs at Info level.
func (l *Logger) Infof(format string, args ...any) {
	l.log(Info, "", fmt.Sprintf(format, args...))
}

// Errorf logs at Error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.log(Error, "", fmt.Sprintf(format, args...))
}

// ErrorAt logs at Error level with an explicit source-location trailer,
// used by the pipeline when reporting a ServerError's log site.
func (l *Logger) ErrorAt(site, format string, args ...any) {
	l.log(Error, site, fmt.Sprintf(format, args...))
}

// Snapshot returns a copy of the current lines, oldest first.
func (l *Logger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.lines))
	copy(out, l.lines)
	return out
}

// SnapshotText returns the current lines rendered and newline-joined, the
// shape the admin/api/log endpoint serves as text.
func (l *Logger) SnapshotText() string {
	lines := l.Snapshot()
	out := make([]byte, 0, len(lines)*64)
	for _, e := range lines {
		out = append(out, e.Rendered...)
		out = append(out, '\n')
	}
	return string(out)
}
