package core

import (
	"time"
)

const MaxLogEntries = 1000
const MaxLogMessageSize = 4096

// LogBuffer collects console output for the invocation currently running on
// a context. It is owned by the context and only touched on its goroutine.
type LogBuffer struct {
	entries []LogEntry
}

// Add appends an entry, dropping it when the buffer is full and truncating
// long messages.
func (b *LogBuffer) Add(level, message string) {
	if len(b.entries) >= MaxLogEntries {
		return
	}
	if len(message) > MaxLogMessageSize {
		message = message[:MaxLogMessageSize] + "...(truncated)"
	}
	b.entries = append(b.entries, LogEntry{
		Level:   level,
		Message: message,
		Time:    time.Now(),
	})
}

// Take returns the collected entries and empties the buffer.
func (b *LogBuffer) Take() []LogEntry {
	out := b.entries
	b.entries = nil
	return out
}

// Len returns the number of buffered entries.
func (b *LogBuffer) Len() int {
	return len(b.entries)
}
