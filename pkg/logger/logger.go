package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type LogLevel string

const (
	DEBUG LogLevel = "debug"
	INFO  LogLevel = "info"
	WARN  LogLevel = "warn"
	ERROR LogLevel = "error"
)

// Logger is a structured logger. Messages are snake_case event names
// followed by alternating key/value pairs.
type Logger struct {
	entry *logrus.Entry
}

var (
	global *Logger
	mu     sync.RWMutex
)

// Init configures the process-wide logger. A nil writer discards output.
func Init(level LogLevel, jsonFormat bool, w io.Writer) {
	base := logrus.New()
	if w == nil {
		w = io.Discard
	}
	base.SetOutput(w)

	if jsonFormat {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	lvl, err := logrus.ParseLevel(string(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	mu.Lock()
	global = &Logger{entry: logrus.NewEntry(base)}
	mu.Unlock()
}

func GetLogger() *Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(INFO, false, os.Stdout)
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// WithContext returns a child logger carrying the given key/value pairs on
// every line it writes.
func (l *Logger) WithContext(kv ...interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(toFields(kv))}
}

func (l *Logger) Debug(msg string, kv ...interface{}) {
	l.entry.WithFields(toFields(kv)).Debug(msg)
}

func (l *Logger) Info(msg string, kv ...interface{}) {
	l.entry.WithFields(toFields(kv)).Info(msg)
}

func (l *Logger) Warn(msg string, kv ...interface{}) {
	l.entry.WithFields(toFields(kv)).Warn(msg)
}

func (l *Logger) Error(msg string, kv ...interface{}) {
	l.entry.WithFields(toFields(kv)).Error(msg)
}

func Debug(msg string, kv ...interface{}) { GetLogger().Debug(msg, kv...) }
func Info(msg string, kv ...interface{})  { GetLogger().Info(msg, kv...) }
func Warn(msg string, kv ...interface{})  { GetLogger().Warn(msg, kv...) }
func Error(msg string, kv ...interface{}) { GetLogger().Error(msg, kv...) }

func toFields(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			fields["!BADKEY"] = key
			break
		}
		fields[key] = kv[i+1]
	}
	return fields
}
