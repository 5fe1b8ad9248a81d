// Package logging provides a small level-filtered logger used throughout
// fscrawl in place of a global logging singleton. A Logger is constructed
// once by the CLI entry point and passed by value into the components that
// need it.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Sink is the destination for formatted log lines. Two variants are
// provided: NewConsoleSink and NewFileSink.
type Sink interface {
	// write emits a single already-formatted line (without trailing
	// newline).
	write(line string)
}

// consoleSink writes colorized output to stderr.
type consoleSink struct {
	mu *sync.Mutex
}

// NewConsoleSink creates a Sink that writes to stderr, colorizing warning
// and error lines.
func NewConsoleSink() Sink {
	return &consoleSink{mu: &sync.Mutex{}}
}

func (s *consoleSink) write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(os.Stderr, line)
}

// fileSink writes plain lines to an append-only file.
type fileSink struct {
	mu *sync.Mutex
	f  *os.File
}

// NewFileSink opens (creating and appending to) the file at path for
// logging output.
func NewFileSink(path string) (Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &fileSink{mu: &sync.Mutex{}, f: f}, nil
}

func (s *fileSink) write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.f, line)
}

// Close closes the underlying file, if the sink wraps one.
func Close(s Sink) error {
	if fs, ok := s.(*fileSink); ok {
		return fs.f.Close()
	}
	return nil
}

// writer is an io.Writer that splits its input stream into lines and
// forwards those lines to a logging callback.
type writer struct {
	callback func(string)
	buffer   []byte
}

func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

func (w *writer) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is a level-filtered logger. A nil *Logger is valid and discards
// everything, mirroring the nil-safety of the original logging package this
// is modeled on.
type Logger struct {
	sink   Sink
	level  Level
	prefix string
}

// New creates a root Logger writing to sink, enabled up to and including
// level.
func New(sink Sink, level Level) *Logger {
	return &Logger{sink: sink, level: level}
}

// Sublogger creates a derived logger sharing the sink and level, prefixed
// with name.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{sink: l.sink, level: l.level, prefix: prefix}
}

func (l *Logger) enabled(level Level) bool {
	return l != nil && l.sink != nil && level <= l.level
}

func (l *Logger) emit(level Level, line string) {
	if !l.enabled(level) {
		return
	}
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	l.sink.write(line)
}

// Error logs an error-level message.
func (l *Logger) Error(v ...interface{}) {
	l.emit(LevelError, color.RedString("%s", fmt.Sprint(v...)))
}

// Errorf logs a formatted error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.emit(LevelError, color.RedString(format, v...))
}

// Warn logs a warning-level message.
func (l *Logger) Warn(v ...interface{}) {
	l.emit(LevelWarning, color.YellowString("%s", fmt.Sprint(v...)))
}

// Warnf logs a formatted warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.emit(LevelWarning, color.YellowString(format, v...))
}

// Info logs an informational message.
func (l *Logger) Info(v ...interface{}) {
	l.emit(LevelInfo, fmt.Sprint(v...))
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.emit(LevelInfo, fmt.Sprintf(format, v...))
}

// Detail logs a detailed (verbose) message.
func (l *Logger) Detail(v ...interface{}) {
	l.emit(LevelDetailed, fmt.Sprint(v...))
}

// Detailf logs a formatted detailed (verbose) message.
func (l *Logger) Detailf(format string, v ...interface{}) {
	l.emit(LevelDetailed, fmt.Sprintf(format, v...))
}

// Debug logs a debugging message.
func (l *Logger) Debug(v ...interface{}) {
	l.emit(LevelDebug, fmt.Sprint(v...))
}

// Debugf logs a formatted debugging message.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.emit(LevelDebug, fmt.Sprintf(format, v...))
}

// DebugWriter returns an io.Writer that logs each line written to it at
// debug level. Useful for piping driver output from subsystems that expect
// a plain writer (e.g. database/sql driver tracing).
func (l *Logger) DebugWriter() io.Writer {
	if !l.enabled(LevelDebug) {
		return discard{}
	}
	return &writer{callback: func(s string) { l.Debug(s) }}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// standardSink adapts a Logger into the standard library's log.Logger,
// useful for components (e.g. database/sql) that expect that interface.
func (l *Logger) standardSink() *log.Logger {
	return log.New(l.DebugWriter(), "", 0)
}
