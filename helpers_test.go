package agentclient

import (
	"fmt"
	"strings"
	"sync"
)

type logEntry struct {
	level string
	msg   string
	kv    []any
}

// recordingLogger keeps every log call for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, kv: kv})
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.log("debug", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.log("info", msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...any)  { l.log("warn", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.log("error", msg, kv) }

func (l *recordingLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if strings.HasPrefix(e.msg, prefix) {
			n++
		}
	}
	return n
}

// field returns the value logged under key for the first message with prefix.
func (l *recordingLogger) field(prefix, key string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if !strings.HasPrefix(e.msg, prefix) {
			continue
		}
		for i := 0; i+1 < len(e.kv); i += 2 {
			if e.kv[i] == key {
				return fmt.Sprint(e.kv[i+1])
			}
		}
	}
	return ""
}
