// Package logging provides session-based logging for the pump and its
// listeners. It enables clean CLI output while preserving detailed logs in
// session files, mirroring the session-logger convention used elsewhere in
// this codebase.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SessionLogger manages logging to both file and console with selective
// output. Debug messages go to the session file only; errors and
// user-facing messages go to both.
type SessionLogger struct {
	sessionFile *os.File
	mu          sync.Mutex
	sessionPath string
	quietMode   bool
}

// New creates a new session logger.
// logDir: directory where session log files are stored.
// quietMode: if true, suppress info-level output to console (file only).
func New(logDir string, quietMode bool) (*SessionLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	sessionID := time.Now().Format("20060102-150405")
	sessionPath := filepath.Join(logDir, fmt.Sprintf("pump-%s.log", sessionID))

	file, err := os.OpenFile(sessionPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create session log file: %w", err)
	}

	logger := &SessionLogger{
		sessionFile: file,
		sessionPath: sessionPath,
		quietMode:   quietMode,
	}

	logger.writeToFile("=== pump session started ===\n")
	logger.writeToFile("Time: %s\n", time.Now().Format(time.RFC3339))
	logger.writeToFile("Log file: %s\n\n", sessionPath)

	// Redirect the standard log package to the session file so that any
	// library or listener using log.Printf also lands here.
	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime)

	return logger, nil
}

// Close closes the session log file.
func (s *SessionLogger) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionFile != nil {
		s.writeToFile("\n=== pump session ended ===\n")
		return s.sessionFile.Close()
	}
	return nil
}

// GetSessionPath returns the path to the current session log file.
func (s *SessionLogger) GetSessionPath() string {
	return s.sessionPath
}

// Debug writes a debug message to the session file only.
func (s *SessionLogger) Debug(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeToFile("[%s] DEBUG: %s\n", ts(), fmt.Sprintf(format, args...))
}

// Info writes an info message to the session file, and to console unless
// quiet mode is enabled.
func (s *SessionLogger) Info(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message := fmt.Sprintf(format, args...)
	s.writeToFile("[%s] INFO: %s\n", ts(), message)
	if !s.quietMode {
		fmt.Println(message)
	}
}

// Error writes an error message to both file and console.
func (s *SessionLogger) Error(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message := fmt.Sprintf(format, args...)
	s.writeToFile("[%s] ERROR: %s\n", ts(), message)
	fmt.Fprintf(os.Stderr, "error: %s\n", message)
}

// PumpError logs a pipeline error the way the pump's error-filter stage
// surfaces it: thread identifier, error kind, and a short diagnostic.
func (s *SessionLogger) PumpError(threadID, kind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeToFile("[%s] PUMP-ERROR thread=%s kind=%s: %s\n", ts(), threadID, kind, message)
	if !s.quietMode {
		fmt.Fprintf(os.Stderr, "pump error [%s] thread=%s: %s\n", kind, threadID, message)
	}
}

func (s *SessionLogger) writeToFile(format string, args ...interface{}) {
	if s.sessionFile != nil {
		fmt.Fprintf(s.sessionFile, format, args...)
		s.sessionFile.Sync()
	}
}

func ts() string {
	return time.Now().Format("15:04:05")
}

// SetQuietMode enables or disables quiet mode.
func (s *SessionLogger) SetQuietMode(quiet bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quietMode = quiet
}

var (
	globalLogger *SessionLogger
	globalMu     sync.Mutex
)

// SetGlobalLogger sets the global session logger instance, used by
// components that do not hold a direct reference to the pump's logger.
func SetGlobalLogger(logger *SessionLogger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global session logger instance, if any.
func GetGlobalLogger() *SessionLogger {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalLogger
}
