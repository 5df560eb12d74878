// Package journal holds the Session Log: the append-only, ordered record of
// every inbound, outbound and system event of one session.
package journal

import (
	"iter"
	"sync"
	"time"
)

// Sender identifies who produced an entry.
type Sender int

const (
	Local Sender = iota
	Remote
	System
)

func (s Sender) String() string {
	switch s {
	case Local:
		return "You"
	case Remote:
		return "Peer"
	case System:
		return "System"
	default:
		return "Unknown"
	}
}

// FileRef points at a FileAsset by id.
type FileRef struct {
	ID   string
	Name string
	Size int64
}

// Entry is one immutable record. File is set when the entry refers to a
// transferred file.
type Entry struct {
	Sender  Sender
	Content string
	File    *FileRef
	Time    time.Time
}

// Log is safe for concurrent use. Entries are never mutated or removed
// once appended.
type Log struct {
	// notify is held from append through notification, so subscribers see
	// entries in log order.
	notify sync.Mutex

	mu      sync.RWMutex
	entries []Entry
	subs    []func(Entry)
	now     func() time.Time
}

// New returns an empty log.
func New() *Log {
	return &Log{now: time.Now}
}

// Append records e, stamping the current time when e.Time is zero, and
// notifies subscribers in registration order.
func (l *Log) Append(e Entry) {
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	if e.File != nil {
		ref := *e.File
		e.File = &ref
	}

	l.notify.Lock()
	defer l.notify.Unlock()

	l.mu.Lock()
	l.entries = append(l.entries, e)
	subs := l.subs
	l.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

// System is shorthand for appending a System entry.
func (l *Log) System(content string) {
	l.Append(Entry{Sender: System, Content: content})
}

// Entries returns a snapshot of the log as a restartable sequence. Entries
// appended after the call are not part of the snapshot.
func (l *Log) Entries() iter.Seq[Entry] {
	l.mu.RLock()
	snap := l.entries[:len(l.entries):len(l.entries)]
	l.mu.RUnlock()

	return func(yield func(Entry) bool) {
		for _, e := range snap {
			if !yield(e) {
				return
			}
		}
	}
}

// Len returns the number of entries appended so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Subscribe registers fn to be called after every subsequent Append, in log
// order. fn runs on the appending goroutine and must not append to l.
func (l *Log) Subscribe(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs[:len(l.subs):len(l.subs)], fn)
}
