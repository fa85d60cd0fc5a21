package logging

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

// TestLogger is a logger for tests. It records every line it receives and
// only prints them when created with NewTestLoggerVerbose.
type TestLogger struct {
	module string
	t      *testing.T
	sink   *testSink
}

type testSink struct {
	mu    sync.Mutex
	lines []string
}

// NewTestLogger creates a silent test logger.
func NewTestLogger() *TestLogger {
	return &TestLogger{module: "test", sink: &testSink{}}
}

// NewTestLoggerVerbose creates a test logger that also writes to t.Logf.
func NewTestLoggerVerbose(t *testing.T) *TestLogger {
	return &TestLogger{module: "test", t: t, sink: &testSink{}}
}

func (l *TestLogger) record(level Level, msg string, args ...interface{}) {
	line := fmt.Sprintf("[%s] %s: %s %v", l.module, level, msg, args)
	l.sink.mu.Lock()
	l.sink.lines = append(l.sink.lines, line)
	l.sink.mu.Unlock()
	if l.t != nil {
		l.t.Log(line)
	}
}

// Lines returns everything logged so far, including by derived loggers.
func (l *TestLogger) Lines() []string {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	out := make([]string, len(l.sink.lines))
	copy(out, l.sink.lines)
	return out
}

// Contains reports whether any recorded line contains s.
func (l *TestLogger) Contains(s string) bool {
	for _, line := range l.Lines() {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func (l *TestLogger) Debug(msg string, args ...interface{}) { l.record(LevelDebug, msg, args...) }
func (l *TestLogger) Info(msg string, args ...interface{})  { l.record(LevelInfo, msg, args...) }
func (l *TestLogger) Warn(msg string, args ...interface{})  { l.record(LevelWarn, msg, args...) }
func (l *TestLogger) Error(msg string, args ...interface{}) { l.record(LevelError, msg, args...) }

// Fatal records the message and fails the test instead of exiting.
func (l *TestLogger) Fatal(msg string, args ...interface{}) {
	l.record(LevelFatal, msg, args...)
	if l.t != nil {
		l.t.Fatalf("fatal log: %s", msg)
	}
}

// WithModule returns a logger sharing the same recorded lines.
func (l *TestLogger) WithModule(module string) Logger {
	name := module
	if l.module != "" {
		name = l.module + "/" + module
	}
	return &TestLogger{module: name, t: l.t, sink: l.sink}
}
