package radio

import (
	"sync"
	"time"

	"github.com/juju/errors"
)

// Mock is in-memory Transport for tests and dry runs.
// Push queues frames or errors, Receive pops them in order.
type Mock struct {
	InitErr error

	mu         sync.Mutex
	q          []mockItem
	params     []Params
	closed     bool
	inited     bool
	closeCount int
	signal     chan struct{}
}

type mockItem struct {
	f   *Frame
	err error
}

func NewMock() *Mock {
	return &Mock{signal: make(chan struct{}, 1)}
}

func (self *Mock) Push(from uint8, data []byte) {
	self.push(mockItem{f: &Frame{From: from, Data: data}})
}

func (self *Mock) PushError(err error) { self.push(mockItem{err: err}) }

func (self *Mock) push(item mockItem) {
	self.mu.Lock()
	self.q = append(self.q, item)
	self.mu.Unlock()
	select {
	case self.signal <- struct{}{}:
	default:
	}
}

func (self *Mock) Init() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.InitErr != nil {
		return &Error{Op: "init", Err: self.InitErr}
	}
	self.inited = true
	return nil
}

func (self *Mock) Configure(p Params) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.params = append(self.params, p)
	return nil
}

func (self *Mock) Receive(timeout time.Duration) (*Frame, error) {
	tmr := time.NewTimer(timeout)
	defer tmr.Stop()
	for {
		self.mu.Lock()
		if self.closed {
			self.mu.Unlock()
			return nil, &Error{Op: "receive", Err: errors.New("mock closed")}
		}
		if len(self.q) > 0 {
			item := self.q[0]
			self.q = self.q[1:]
			self.mu.Unlock()
			return item.f, item.err
		}
		self.mu.Unlock()
		select {
		case <-self.signal:
		case <-tmr.C:
			return nil, nil
		}
	}
}

func (self *Mock) Close() error {
	self.mu.Lock()
	self.closed = true
	self.closeCount++
	self.mu.Unlock()
	return nil
}

func (self *Mock) Closed() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closed
}

func (self *Mock) Inited() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.inited
}

func (self *Mock) CloseCount() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closeCount
}

func (self *Mock) Pending() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.q)
}

func (self *Mock) Params() []Params {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]Params(nil), self.params...)
}
