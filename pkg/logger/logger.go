package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

// ParseLevel converts a textual level ("debug", "info", "notice", "error") into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "notice":
		return NoticeLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level: %s", s)
}

type chainStyle struct {
	prefix string
	color  color.Attribute
}

var chainStyles = map[int]chainStyle{
	1:         {"[ETH]     ", color.FgHiGreen},
	11155111:  {"[SEPOLIA] ", color.FgGreen},
	8453:      {"[BASE]    ", color.FgBlue},
	84532:     {"[BASE-T]  ", color.FgHiBlue},
	845320009: {"[HORIZEN] ", color.FgMagenta},
	31337:     {"[LOCAL-A] ", color.FgYellow},
	31338:     {"[LOCAL-B] ", color.FgHiYellow},
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithChain(chainID int, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithChain(chainID int, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithChain(chainID int, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithChain(chainID int, format string, args ...interface{})
}

// EmptyLogger discards everything.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                   {}
func (l *EmptyLogger) InfoWithChain(_ int, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                  {}
func (l *EmptyLogger) ErrorWithChain(_ int, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                  {}
func (l *EmptyLogger) DebugWithChain(_ int, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                 {}
func (l *EmptyLogger) NoticeWithChain(_ int, _ string, _ ...interface{}) {}

// StdLogger writes leveled, optionally colored lines through the standard log package.
type StdLogger struct {
	enableColoring bool
	level          Level
	component      string
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
	}
}

// Named returns a logger sharing the configuration but tagging every line with a component name.
func (l *StdLogger) Named(component string) *StdLogger {
	return &StdLogger{
		enableColoring: l.enableColoring,
		level:          l.level,
		component:      component,
	}
}

var levelTags = map[Level]string{
	DebugLevel:  "[DEBUG]  ",
	InfoLevel:   "[INFO]   ",
	NoticeLevel: "[NOTICE] ",
	ErrorLevel:  "[ERROR]  ",
}

// formatMessage prepends the level tag, the chain prefix and the component name.
func (l *StdLogger) formatMessage(level Level, chainID int, format string) string {
	var b strings.Builder
	b.WriteString(levelTags[level])

	if style, ok := chainStyles[chainID]; ok {
		if l.enableColoring {
			b.WriteString(color.New(style.color).Sprint(style.prefix))
		} else {
			b.WriteString(style.prefix)
		}
	} else if chainID != 0 {
		b.WriteString(fmt.Sprintf("[%d] ", chainID))
	}

	if l.component != "" {
		b.WriteString(l.component)
		b.WriteString(": ")
	}
	b.WriteString(format)
	return b.String()
}

func (l *StdLogger) write(level Level, chainID int, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	log.Printf(l.formatMessage(level, chainID, format), args...)
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.write(InfoLevel, 0, format, args...)
}

func (l *StdLogger) InfoWithChain(chainID int, format string, args ...interface{}) {
	l.write(InfoLevel, chainID, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.write(ErrorLevel, 0, format, args...)
}

func (l *StdLogger) ErrorWithChain(chainID int, format string, args ...interface{}) {
	l.write(ErrorLevel, chainID, format, args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.write(DebugLevel, 0, format, args...)
}

func (l *StdLogger) DebugWithChain(chainID int, format string, args ...interface{}) {
	l.write(DebugLevel, chainID, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.write(NoticeLevel, 0, format, args...)
}

func (l *StdLogger) NoticeWithChain(chainID int, format string, args ...interface{}) {
	l.write(NoticeLevel, chainID, format, args...)
}
