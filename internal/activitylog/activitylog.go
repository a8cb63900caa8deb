// Package activitylog keeps a bounded, insertion-ordered record of the
// rig's inbound requests and outbound protocol events.
//
// The log exists for observability: a test run against the rig can be
// reconstructed from it, interleaving MCP requests, OAuth traffic and the
// asynchronous notifications the rig emits. Payloads are stored as truncated
// previews so the log stays uniform across heterogeneous bodies.
package activitylog

import (
	"sync"
	"time"
)

// MaxEntries is the number of entries the log retains. Appending beyond the
// bound evicts the oldest entry first.
const MaxEntries = 200

// maxPreviewBytes bounds stored body and argument previews.
const maxPreviewBytes = 512

// Direction classifies an entry as inbound (a request hitting the rig) or
// outbound (an event the rig emitted on its own).
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transport classifies which surface an entry belongs to.
type Transport string

const (
	// TransportProtocol is the MCP endpoint.
	TransportProtocol Transport = "protocol"
	// TransportAuth is the authorization-code flow surface.
	TransportAuth Transport = "auth"
)

// Entry is one immutable activity record. Optional fields are omitted from
// JSON when empty so entries of different shapes serialize uniformly.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	Direction   Direction `json:"direction"`
	Transport   Transport `json:"transport"`
	Method      string    `json:"method,omitempty"`
	Path        string    `json:"path,omitempty"`
	SessionID   string    `json:"sessionId,omitempty"`
	StatusCode  int       `json:"statusCode,omitempty"`
	RPCMethod   string    `json:"rpcMethod,omitempty"`
	RPCID       string    `json:"rpcId,omitempty"`
	Tool        string    `json:"tool,omitempty"`
	ArgsPreview string    `json:"argsPreview,omitempty"`
	Query       string    `json:"query,omitempty"`
	BodyPreview string    `json:"bodyPreview,omitempty"`
}

// Log is the bounded activity record. Append-only from the rest of the rig,
// with an explicit Clear for the control API.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty log.
func New() *Log {
	return &Log{}
}

// Append adds an entry, stamping it if the caller left Timestamp zero, and
// evicts the oldest entry once the bound is exceeded.
func (l *Log) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.ArgsPreview = Truncate(e.ArgsPreview)
	e.BodyPreview = Truncate(e.BodyPreview)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	if len(l.entries) > MaxEntries {
		// FIFO eviction; copy to keep the backing array from growing
		// without bound.
		evicted := len(l.entries) - MaxEntries
		l.entries = append(l.entries[:0:0], l.entries[evicted:]...)
	}
}

// Snapshot returns a copy of the entries, oldest first.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the current number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear discards all entries.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Truncate bounds a preview string, marking the cut with an ellipsis.
func Truncate(s string) string {
	if len(s) <= maxPreviewBytes {
		return s
	}
	return s[:maxPreviewBytes] + "..."
}
