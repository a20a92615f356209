package gateway

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/temoto/atomic_clock"
)

// Stat is written by loop goroutine, read by diagnostics.
type Stat struct {
	Frames        uint32
	ReceiveErrors uint32
	DecodeErrors  uint32
	Records       uint32
	Skipped       uint32
	RouteMisses   uint32
	Published     uint32
	PublishErrors uint32
	SampleErrors  uint32

	lastSample uint32 // float32 bits
	LastFrame  atomic_clock.Clock
}

type StatSnapshot struct {
	State         string     `json:"state"`
	Frames        uint32     `json:"frames"`
	ReceiveErrors uint32     `json:"receive_errors"`
	DecodeErrors  uint32     `json:"decode_errors"`
	Records       uint32     `json:"records"`
	Skipped       uint32     `json:"skipped_bytes"`
	RouteMisses   uint32     `json:"route_misses"`
	Published     uint32     `json:"published"`
	PublishErrors uint32     `json:"publish_errors"`
	SampleErrors  uint32     `json:"sample_errors"`
	LastSample    float32    `json:"last_sample"`
	LastFrame     *time.Time `json:"last_frame,omitempty"`
	SinceFrame    string     `json:"since_frame,omitempty"`
}

func (self *Stat) setLastSample(v float32) {
	atomic.StoreUint32(&self.lastSample, math.Float32bits(v))
}

func (self *Stat) LastSample() float32 {
	return math.Float32frombits(atomic.LoadUint32(&self.lastSample))
}

func (self *Stat) Snapshot() StatSnapshot {
	s := StatSnapshot{
		Frames:        atomic.LoadUint32(&self.Frames),
		ReceiveErrors: atomic.LoadUint32(&self.ReceiveErrors),
		DecodeErrors:  atomic.LoadUint32(&self.DecodeErrors),
		Records:       atomic.LoadUint32(&self.Records),
		Skipped:       atomic.LoadUint32(&self.Skipped),
		RouteMisses:   atomic.LoadUint32(&self.RouteMisses),
		Published:     atomic.LoadUint32(&self.Published),
		PublishErrors: atomic.LoadUint32(&self.PublishErrors),
		SampleErrors:  atomic.LoadUint32(&self.SampleErrors),
		LastSample:    self.LastSample(),
	}
	if !self.LastFrame.IsZero() {
		// clock is monotonic relative value, not wall time
		since := atomic_clock.Since(&self.LastFrame)
		t := time.Now().Add(-since)
		s.LastFrame = &t
		s.SinceFrame = since.Truncate(time.Millisecond).String()
	}
	return s
}
