package logger

import (
	"io"
	"log"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var currentLevel atomic.Int32

func init() { currentLevel.Store(int32(INFO)) }

// ParseLevel maps a name such as "warn" to a Level; unknown names map to INFO.
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Init sets the minimum level that is written.
func Init(level string) { currentLevel.Store(int32(ParseLevel(level))) }

func enabled(l Level) bool { return Level(currentLevel.Load()) <= l }

func Debug(format string, v ...any) {
	if enabled(DEBUG) {
		log.Printf("[DEBUG] "+format, v...)
	}
}

func Info(format string, v ...any) {
	if enabled(INFO) {
		log.Printf("[INFO] "+format, v...)
	}
}

func Warn(format string, v ...any) {
	if enabled(WARN) {
		log.Printf("[WARN] "+format, v...)
	}
}

func Error(format string, v ...any) {
	if enabled(ERROR) {
		log.Printf("[ERROR] "+format, v...)
	}
}

func Fatalf(format string, v ...any) { log.Fatalf(format, v...) }

// SetOutput redirects log output, e.g. to io.Discard in tests.
func SetOutput(w io.Writer) { log.SetOutput(w) }
