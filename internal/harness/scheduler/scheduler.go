package scheduler

import "sync"

// Task represents a unit of work to execute serially.
type Task func()

// Serial is a minimal FIFO, single-threaded task runner. Tests hand its
// Enqueue to components that would otherwise spawn goroutines, then drain
// the queue deterministically.
type Serial struct {
	mu    sync.Mutex
	queue []Task
}

// NewSerial returns a new empty serial scheduler.
func NewSerial() *Serial {
	return &Serial{}
}

// Enqueue adds a task to the queue.
func (s *Serial) Enqueue(t Task) {
	if t == nil {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, t)
	s.mu.Unlock()
}

func (s *Serial) pop() Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t
}

// RunOne executes exactly one queued task if present.
func (s *Serial) RunOne() bool {
	t := s.pop()
	if t == nil {
		return false
	}
	t()
	return true
}

// RunAll runs tasks in insertion order until the queue is empty, including
// tasks enqueued while draining.
func (s *Serial) RunAll() {
	for s.RunOne() {
	}
}

// Len returns the number of queued tasks.
func (s *Serial) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
