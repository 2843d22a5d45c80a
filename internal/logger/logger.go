package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LogLevel defines log level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name such as "info" to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", name)
	}
}

// DefaultPrefix names log files when Config.Prefix is empty.
const DefaultPrefix = "haxu-mcp"

// Logger writes leveled lines to one file per day and keeps the newest
// maxDays files.
type Logger struct {
	mu          sync.Mutex
	level       LogLevel
	logDir      string
	prefix      string
	maxDays     int
	currentFile *os.File
	currentDate string
	consoleOut  bool // Whether to output to console
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Config logger configuration
type Config struct {
	LogDir     string   // Log directory
	Prefix     string   // Log file name prefix
	Level      LogLevel // Log level
	MaxDays    int      // Max days to keep logs
	ConsoleOut bool     // Output to console as well
}

// Init initializes the default logger
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		defaultLogger, err = NewLogger(cfg)
	})
	return err
}

// NewLogger creates a new logger instance
func NewLogger(cfg Config) (*Logger, error) {
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 7
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}

	// Ensure log directory exists
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{
		level:      cfg.Level,
		logDir:     cfg.LogDir,
		prefix:     cfg.Prefix,
		maxDays:    cfg.MaxDays,
		consoleOut: cfg.ConsoleOut,
	}

	// Open initial log file
	if err := l.rotateIfNeeded(); err != nil {
		return nil, err
	}

	return l, nil
}

// rotateIfNeeded checks if log rotation is needed and performs it
func (l *Logger) rotateIfNeeded() error {
	today := time.Now().Format("2006-01-02")
	if l.currentDate == today && l.currentFile != nil {
		return nil
	}

	// Close current file
	if l.currentFile != nil {
		l.currentFile.Close()
	}

	// Open new log file
	filename := filepath.Join(l.logDir, fmt.Sprintf("%s-%s.log", l.prefix, today))
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.currentFile = f
	l.currentDate = today

	// Clean old log files
	go l.cleanOldLogs()

	return nil
}

// cleanOldLogs removes log files older than maxDays
func (l *Logger) cleanOldLogs() {
	files, err := filepath.Glob(filepath.Join(l.logDir, l.prefix+"-*.log"))
	if err != nil {
		return
	}

	if len(files) <= l.maxDays {
		return
	}

	// Sort files by name (which is by date)
	sort.Strings(files)

	// Remove old files
	for i := 0; i < len(files)-l.maxDays; i++ {
		os.Remove(files[i])
	}
}

// log writes one line: timestamp, level, optional key=value fields, message.
func (l *Logger) log(level LogLevel, fields string, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(); err != nil {
		fmt.Fprintf(os.Stderr, "Logger rotation error: %v\n", err)
		return
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString("] [")
	b.WriteString(level.String())
	b.WriteString("] ")
	if fields != "" {
		b.WriteString(fields)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, format, args...)
	b.WriteString("\n")
	line := b.String()

	if l.currentFile != nil {
		l.currentFile.WriteString(line)
	}
	// stderr only: stdout belongs to the REPL
	if l.consoleOut {
		fmt.Fprint(os.Stderr, line)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, "", format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(INFO, "", format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(WARN, "", format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, "", format, args...) }

// With returns an entry that prefixes every line with the given key/value
// pairs, e.g. With("session", id, "tool", name).
func (l *Logger) With(kv ...string) *Entry {
	return &Entry{logger: l, fields: formatFields(kv)}
}

// Entry is a logger bound to a fixed set of fields. An entry created from the
// package-level helpers writes to whatever the default logger is at the time
// of the call, so it may be built before Init.
type Entry struct {
	logger *Logger
	fields string
}

// With adds fields to a copy of e.
func (e *Entry) With(kv ...string) *Entry {
	extra := formatFields(kv)
	if e.fields != "" && extra != "" {
		extra = e.fields + " " + extra
	} else if extra == "" {
		extra = e.fields
	}
	return &Entry{logger: e.logger, fields: extra}
}

func (e *Entry) write(level LogLevel, format string, args []interface{}) {
	l := e.logger
	if l == nil {
		l = defaultLogger
	}
	if l != nil {
		l.log(level, e.fields, format, args...)
	}
}

func (e *Entry) Debug(format string, args ...interface{}) { e.write(DEBUG, format, args) }
func (e *Entry) Info(format string, args ...interface{})  { e.write(INFO, format, args) }
func (e *Entry) Warn(format string, args ...interface{})  { e.write(WARN, format, args) }
func (e *Entry) Error(format string, args ...interface{}) { e.write(ERROR, format, args) }

// formatFields renders pairs as key=value; values with spaces or quotes are
// quoted and a trailing key without a value gets an empty one.
func formatFields(kv []string) string {
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		value := ""
		if i+1 < len(kv) {
			value = kv[i+1]
		}
		if value == "" || strings.ContainsAny(value, " \t\"=") {
			value = strconv.Quote(value)
		}
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(value)
	}
	return b.String()
}

// Close closes the logger
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.currentFile != nil {
		return l.currentFile.Close()
	}
	return nil
}

// GetWriter returns an io.Writer for the logger at the specified level
func (l *Logger) GetWriter(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

// logWriter implements io.Writer interface
type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.logger.log(w.level, "", "%s", msg)
	}
	return len(p), nil
}

// Package-level functions using the default logger

// Debug logs a debug message using the default logger
func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debug(format, args...)
	}
}

// Info logs an info message using the default logger
func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Info(format, args...)
	}
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warn(format, args...)
	}
}

// Error logs an error message using the default logger
func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Error(format, args...)
	}
}

// Close closes the default logger
func Close() error {
	if defaultLogger != nil {
		return defaultLogger.Close()
	}
	return nil
}

// With binds fields for lines written through the default logger.
func With(kv ...string) *Entry {
	return &Entry{fields: formatFields(kv)}
}

// Session is With("session", id).
func Session(id string) *Entry {
	return With("session", id)
}

// GetDefault returns the default logger
func GetDefault() *Logger {
	return defaultLogger
}
