// Package chat keeps the ordered, deduplicated chat history of a call.
package chat

import (
	"strconv"
	"sync"
	"time"
)

// Origin tells whether an entry was typed locally or received from the room.
type Origin int

const (
	Local Origin = iota
	Remote
)

func (o Origin) String() string {
	if o == Local {
		return "local"
	}
	return "remote"
}

// Entry is one chat message as displayed. Two entries with the same sender
// and SentAt are the same logical message.
type Entry struct {
	Sender string
	Body   string
	SentAt time.Time
	Origin Origin
}

func (e Entry) key() string {
	return e.Sender + "\x00" + strconv.FormatInt(e.SentAt.UnixNano(), 10)
}

// Log is an append-only sequence ordered by arrival.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	seen    map[string]struct{}
}

func NewLog() *Log {
	return &Log{seen: make(map[string]struct{})}
}

// Append adds e unless an entry with the same (Sender, SentAt) exists.
// It reports whether the log changed.
func (l *Log) Append(e Entry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := e.key()
	if _, dup := l.seen[k]; dup {
		return false
	}
	l.seen[k] = struct{}{}
	l.entries = append(l.entries, e)
	return true
}

// Entries returns a copy of the log in arrival order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Reset drops every entry.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.seen = make(map[string]struct{})
}

// Timestamp returns t at the millisecond precision used on the wire, so a
// locally stamped entry matches its own echo.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
