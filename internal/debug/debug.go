// Package debug provides component-scoped diagnostic logging.
//
// Output is off unless the binary was built with EnableDebug=true or the
// environment sets DEBUG / METHODMAP_DEBUG. Nothing is ever written while the
// process serves the MCP protocol over stdio.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Build flag for debug mode - can be overridden at build time
// go build -ldflags "-X github.com/standardbeagle/methodmap/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// MCPMode tracks if we're running in MCP mode (set by main)
var MCPMode = false

// Component names used as log prefixes
const (
	ComponentIndex    = "INDEX"
	ComponentSearch   = "SEARCH"
	ComponentReinject = "REINJECT"
	ComponentAnnotate = "ANNOTATE"
	ComponentMCP      = "MCP"
	ComponentWatch    = "WATCH"
)

var (
	debugOutput io.Writer
	debugFile   *os.File
	debugMutex  sync.Mutex
)

// SetMCPMode enables MCP mode which suppresses all debug output
func SetMCPMode(enabled bool) {
	MCPMode = enabled
}

// SetDebugOutput sets a custom writer for debug output.
// Pass nil to disable debug output entirely.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitDebugLogFile routes debug output to a timestamped file under the temp dir.
// Call CloseDebugLog when done.
func InitDebugLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "methodmap-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", time.Now().Format("2006-01-02T150405")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// IsDebugEnabled returns true if debug mode is enabled and we're not in MCP mode
func IsDebugEnabled() bool {
	if MCPMode {
		return false
	}
	if EnableDebug == "true" {
		return true
	}
	for _, name := range []string{"DEBUG", "METHODMAP_DEBUG"} {
		if v := os.Getenv(name); v == "1" || v == "true" {
			return true
		}
	}
	return false
}

func getDebugWriter() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Printf prints debug information only when debug mode is enabled and output is configured
func Printf(format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG] "+format, args...)
}

// Log writes a line tagged with the component name. A trailing newline is added
// when the format lacks one.
func Log(component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		msg += "\n"
	}
	fmt.Fprintf(w, "[DEBUG:%s] %s", component, msg)
}

// LogIndexing logs indexing progress
func LogIndexing(format string, args ...interface{}) {
	Log(ComponentIndex, format, args...)
}

// LogSearch logs scoring and session operations
func LogSearch(format string, args ...interface{}) {
	Log(ComponentSearch, format, args...)
}

// LogReinject logs reconciliation decisions
func LogReinject(format string, args ...interface{}) {
	Log(ComponentReinject, format, args...)
}

// LogAnnotate logs annotation cache activity
func LogAnnotate(format string, args ...interface{}) {
	Log(ComponentAnnotate, format, args...)
}

// LogMCP logs host-protocol activity
func LogMCP(format string, args ...interface{}) {
	Log(ComponentMCP, format, args...)
}

// LogWatch logs file watcher events
func LogWatch(format string, args ...interface{}) {
	Log(ComponentWatch, format, args...)
}

// Fatal records a fatal condition and returns it as an error.
// Callers decide whether to exit.
func Fatal(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if !MCPMode {
		if w := getDebugWriter(); w != nil {
			fmt.Fprintf(w, "[FATAL] %s\n", msg)
		}
	}
	return fmt.Errorf("fatal error: %s", msg)
}
