package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
)

const (
	ERROR = iota + 1
	WARNING
	INFO
	DEBUG
	TRACE
)

func levelFromEnv() int {
	switch os.Getenv("LOG_LEVEL") {
	case "ERROR", "error":
		return ERROR
	case "WARNING", "warning":
		return WARNING
	case "DEBUG", "debug":
		return DEBUG
	case "TRACE", "trace":
		return TRACE
	default:
		return INFO
	}
}

type BuiltinLogger struct {
	logger *log.Logger
	level  int
}

func NewBuiltinLogger() *BuiltinLogger {
	return &BuiltinLogger{
		logger: log.New(os.Stdout, "", log.Ldate|log.Ltime),
		level:  levelFromEnv(),
	}
}

func (l *BuiltinLogger) printf(level int, tag string, caller bool, format string, args ...any) {
	if l.level < level {
		return
	}
	if caller {
		if _, file, line, ok := runtime.Caller(2); ok {
			tag = fmt.Sprintf("%s %s:%d:", tag, filepath.Base(file), line)
		}
	}
	l.logger.Printf(tag+" "+format, args...)
}

func (l *BuiltinLogger) Trace(format string, args ...any) {
	l.printf(TRACE, "[TRACE]", true, format, args...)
}

func (l *BuiltinLogger) Debug(format string, args ...any) {
	l.printf(DEBUG, "[DEBUG]", true, format, args...)
}

func (l *BuiltinLogger) Info(format string, args ...any) {
	l.printf(INFO, "[INFO] ", false, format, args...)
}

func (l *BuiltinLogger) Warning(format string, args ...any) {
	l.printf(WARNING, "[WARN] ", false, format, args...)
}

func (l *BuiltinLogger) Error(format string, args ...any) {
	l.printf(ERROR, "[ERROR]", true, format, args...)
}

func (l *BuiltinLogger) Fatal(format string, args ...any) {
	l.printf(ERROR, "[FATAL]", true, format, args...)
	os.Exit(1)
}
