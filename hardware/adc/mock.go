package adc

import "sync"

// Mock returns Raw or Err, counts samples.
type Mock struct {
	mu    sync.Mutex
	Raw   uint16
	Err   error
	count int
}

func (self *Mock) SampleRaw() (uint16, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.count++
	return self.Raw, self.Err
}

func (self *Mock) Close() error { return nil }

func (self *Mock) Count() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.count
}
