package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes trading activity to a dated log file and mirrors it to stderr.
type Logger struct {
	name    string
	logFile *os.File
	file    *log.Logger
	console *log.Logger
	mu      sync.Mutex
	logDir  string
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelCycle   LogLevel = "CYCLE"
)

// New creates a logger writing to logs/<name>_<date>.log.
func New(name string) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.log", name, time.Now().Format("2006-01-02"))
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		name:    name,
		logFile: file,
		file:    log.New(file, "", 0),
		console: log.New(os.Stderr, "", 0),
		logDir:  logDir,
	}

	l.writeSessionHeader()
	return l, nil
}

// NewDiscard returns a logger that writes nowhere. Used by tests.
func NewDiscard() *Logger {
	return &Logger{
		name:    "test",
		file:    log.New(discardWriter{}, "", 0),
		console: log.New(discardWriter{}, "", 0),
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
TRADING SESSION STARTED: %s
Started: %s
================================================================================`,
		l.name, time.Now().Format("2006-01-02 15:04:05"))

	l.file.Print(header)
}

// Log writes a formatted entry with the given level to file and console.
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	entry := fmt.Sprintf("[%s] [%s] %s", timestamp, level, message)

	l.file.Println(entry)
	l.console.Println(entry)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Cycle logs scheduler and cycle lifecycle events
func (l *Logger) Cycle(format string, args ...interface{}) {
	l.Log(LogLevelCycle, format, args...)
}

// LogError logs an error with surrounding context.
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogWarning logs a warning with surrounding context.
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	l.Warning("%s", fmt.Sprintf(context+": "+message, args...))
}

// LogFill logs the result of a broker fill applied to the portfolio.
func (l *Logger) LogFill(side string, ticker string, qty int, price float64, orderID string, cash float64) {
	l.Trade("%s %s: %d shares @ $%.2f (order %s) cash=$%.2f", side, ticker, qty, price, orderID, cash)
}

// Close writes a session footer and closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return nil
	}

	footer := fmt.Sprintf(`
================================================================================
TRADING SESSION ENDED: %s
Ended: %s
================================================================================
`, l.name, time.Now().Format("2006-01-02 15:04:05"))
	l.file.Print(footer)

	return l.logFile.Close()
}

// GetLogPath returns the current log file path.
func (l *Logger) GetLogPath() string {
	filename := fmt.Sprintf("%s_%s.log", l.name, time.Now().Format("2006-01-02"))
	return filepath.Join(l.logDir, filename)
}
