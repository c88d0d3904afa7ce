package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

const colorReset = "\033[0m"

var levelText = map[LogLevel]string{
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
}

var levelColor = map[LogLevel]string{
	LogLevelDebug: "\033[36m", // cyan
	LogLevelInfo:  "\033[32m", // green
	LogLevelWarn:  "\033[33m", // yellow
	LogLevelError: "\033[31m", // red
}

type LoggerHandler struct {
	level    LogLevel
	useColor bool
	logger   *log.Logger
	mu       sync.Mutex
}

func NewLoggerHandler(level string) *LoggerHandler {
	return &LoggerHandler{
		level:    parseLogLevel(level),
		useColor: shouldUseColor(),
		logger:   log.New(os.Stdout, "", 0),
	}
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func shouldUseColor() bool {
	for _, key := range []string{"NO_COLOR"} {
		v := os.Getenv(key)
		if strings.EqualFold(v, "1") || strings.EqualFold(v, "true") {
			return false
		}
	}
	v := os.Getenv("LOG_COLOR")
	if strings.EqualFold(v, "0") || strings.EqualFold(v, "false") {
		return false
	}
	return true
}

func (l *LoggerHandler) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = parseLogLevel(level)
}

func (l *LoggerHandler) Debugf(format string, args ...interface{}) {
	l.logf(LogLevelDebug, format, args...)
}

func (l *LoggerHandler) Infof(format string, args ...interface{}) {
	l.logf(LogLevelInfo, format, args...)
}

func (l *LoggerHandler) Warnf(format string, args ...interface{}) {
	l.logf(LogLevelWarn, format, args...)
}

func (l *LoggerHandler) Errorf(format string, args ...interface{}) {
	l.logf(LogLevelError, format, args...)
}

func (l *LoggerHandler) logf(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	timestamp := time.Now().Format(time.RFC3339)
	message := fmt.Sprintf(format, args...)
	source := callerFileName()

	if l.useColor {
		l.logger.Printf("%s[%s] [%s] [%s]%s %s", levelColor[level], timestamp, levelText[level], source, colorReset, message)
		return
	}

	l.logger.Printf("[%s] [%s] [%s] %s", timestamp, levelText[level], source, message)
}

// callerFileName walks up the stack to the first frame outside this file so
// log lines point at the real call site.
func callerFileName() string {
	const thisFile = "logger_handler.go"

	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return "unknown"
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		base := filepath.Base(frame.File)
		if base != thisFile {
			return strings.TrimSuffix(base, filepath.Ext(base))
		}
		if !more {
			return "unknown"
		}
	}
}

var defaultLogger = NewLoggerHandler(os.Getenv("LOG_LEVEL"))

func SetLogLevel(level string) {
	defaultLogger.SetLevel(level)
}

func Debugf(format string, args ...interface{}) {
	defaultLogger.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	defaultLogger.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	defaultLogger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	defaultLogger.Errorf(format, args...)
}
