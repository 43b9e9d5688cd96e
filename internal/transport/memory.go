package transport

import (
	"sync"

	"github.com/Niskigvan/couchdb/internal/shardsync"
)

// Call records one push seen by the memory transport.
type Call struct {
	Subject string
	Node    string
}

// Memory is an in-process push transport used by tests and local runs.
type Memory struct {
	mu    sync.Mutex
	calls []Call
}

// Push implements shardsync.Transport.
func (m *Memory) Push(subject, node string) shardsync.Result {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Subject: subject, Node: node})
	m.mu.Unlock()
	return shardsync.Delivered
}

// Snapshot returns a copy of all recorded pushes.
func (m *Memory) Snapshot() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
