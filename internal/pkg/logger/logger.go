// Package logger emits structured JSON log events for anything that
// mentions a lead. Emails and profile URLs are redacted before they
// reach the log stream; the worker loops keep stdlib log for their
// operational chatter.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (lv Level) String() string {
	switch lv {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a config string to a Level. Unknown values land on
// INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger writes one JSON object per event to out.
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	redactPII bool
}

var defaultLogger = &Logger{out: os.Stderr, level: INFO, redactPII: true}

// SetLevel sets the minimum level the default logger emits.
func SetLevel(lv Level) { defaultLogger.level = lv }

// SetRedactPII toggles lead-PII redaction on the default logger.
// Redaction is on unless a deployment explicitly turns it off.
func SetRedactPII(on bool) { defaultLogger.redactPII = on }

func Debug(msg string, kv ...interface{}) { defaultLogger.emit(DEBUG, msg, kv) }
func Info(msg string, kv ...interface{})  { defaultLogger.emit(INFO, msg, kv) }
func Warn(msg string, kv ...interface{})  { defaultLogger.emit(WARN, msg, kv) }
func Error(msg string, kv ...interface{}) { defaultLogger.emit(ERROR, msg, kv) }

// emit renders msg plus alternating key/value pairs as one JSON line.
// A trailing key without a value is dropped.
func (l *Logger) emit(lv Level, msg string, kv []interface{}) {
	if lv < l.level {
		return
	}

	event := make(map[string]interface{}, len(kv)/2+3)
	event["time"] = time.Now().UTC().Format(time.RFC3339)
	event["level"] = lv.String()
	event["msg"] = msg
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		val := fmt.Sprintf("%v", kv[i+1])
		if l.redactPII {
			val = redactField(key, val)
		}
		event[key] = val
	}

	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(line, '\n'))
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// redactField masks lead identifiers by field name, then sweeps the
// value for embedded email addresses regardless of key.
func redactField(key, val string) string {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "linkedin"), strings.Contains(key, "profile"):
		return RedactProfileURL(val)
	case strings.Contains(key, "email"), strings.Contains(key, "lead"):
		if strings.Contains(val, "@") {
			return RedactEmail(val)
		}
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}
