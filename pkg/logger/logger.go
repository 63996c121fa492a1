// Package logger is the leveled run log shared by every appium-compat package.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

var (
	globalLogger  *log.Logger
	consoleLogger *log.Logger
	logFile       *os.File
	debugConsole  bool
	mu            sync.Mutex
)

// Init initializes the global logger with the specified log file path.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	if logFile != nil {
		logFile.Close()
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	globalLogger = log.New(f, "", log.Ltime|log.Lmicroseconds)

	return nil
}

// SetConsole mirrors log lines to w (usually stdout) so failures can be
// triaged from the terminal. Debug lines are mirrored only when verbose is set.
// Passing nil disables the mirror.
func SetConsole(w io.Writer, verbose bool) {
	mu.Lock()
	defer mu.Unlock()

	if w == nil {
		consoleLogger = nil
		return
	}
	consoleLogger = log.New(w, "", log.Ltime)
	debugConsole = verbose
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	globalLogger = nil
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	write("[INFO] ", true, format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	write("[DEBUG] ", false, format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	write("[ERROR] ", true, format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	write("[WARN] ", true, format, v...)
}

func write(prefix string, mirror bool, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.Printf(prefix+format, v...)
	}
	if consoleLogger != nil && (mirror || debugConsole) {
		consoleLogger.Printf(prefix+format, v...)
	}
}

// GetWriter returns the underlying writer, used for server process output.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
