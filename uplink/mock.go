package uplink

import (
	"context"
	"sync"
)

type Sent struct {
	ID    string
	Value float32
}

// Mock records every publish attempt, including failed ones.
type Mock struct {
	// Fail is consulted per attempt, nil means success.
	Fail func(id string, value float32) error

	mu     sync.Mutex
	sent   []Sent
	closed bool
}

var _ Publisher = &Mock{}

func (m *Mock) Publish(ctx context.Context, id string, value float32) error {
	m.mu.Lock()
	m.sent = append(m.sent, Sent{ID: id, Value: value})
	fail := m.Fail
	m.mu.Unlock()
	if fail != nil {
		return fail(id, value)
	}
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Mock) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	ss := make([]Sent, len(m.sent))
	copy(ss, m.sent)
	return ss
}

func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
