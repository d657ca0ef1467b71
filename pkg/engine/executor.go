package engine

import "sync"

// Executor runs worker mailbox drains.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(task func())

// Execute calls f(task).
func (f ExecutorFunc) Execute(task func()) { f(task) }

// Inline runs every task synchronously on the calling goroutine.
var Inline Executor = ExecutorFunc(func(task func()) { task() })

// mailbox serialises the tasks of one worker. A post made while the mailbox
// is draining is queued and picked up by the running drain, so re-entrant
// deliveries never deadlock.
type mailbox struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
	exec     Executor
}

func (m *mailbox) setExecutor(exec Executor) {
	if exec == nil {
		exec = Inline
	}
	m.mu.Lock()
	m.exec = exec
	m.mu.Unlock()
}

func (m *mailbox) post(task func()) {
	m.mu.Lock()
	m.queue = append(m.queue, task)
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	exec := m.exec
	m.mu.Unlock()

	if exec == nil {
		exec = Inline
	}
	exec.Execute(m.drain)
}

func (m *mailbox) drain() {
	defer func() {
		if r := recover(); r != nil {
			m.mu.Lock()
			m.draining = false
			m.queue = nil
			m.mu.Unlock()
			panic(r)
		}
	}()

	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.draining = false
			m.mu.Unlock()
			return
		}
		task := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		task()
	}
}
