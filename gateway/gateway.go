// Package gateway runs receive -> decode -> route -> publish cycle.
// Single goroutine; shutdown token is checked once per iteration.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/rfgate/hardware/adc"
	"github.com/temoto/rfgate/hardware/radio"
	"github.com/temoto/rfgate/helpers"
	"github.com/temoto/rfgate/log2"
	"github.com/temoto/rfgate/protocol"
	"github.com/temoto/rfgate/router"
	"github.com/temoto/rfgate/uplink"
)

type State uint32

const (
	StateIdle State = iota
	StateReceiving
	StateDecoding
	StatePublishing
	StateTerminating
)

var stateNames = [...]string{"idle", "receiving", "decoding", "publishing", "terminating"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// Observer receives loop events, implemented by metrics.
// Methods are called from loop goroutine.
type Observer interface {
	ObserveState(State)
	ObserveReceiveError(error)
	ObserveFrame(from uint8, size int)
	ObserveDecode(p *protocol.Packet, err error)
	ObserveRouteMiss(router.Key)
	ObservePublish(id string, err error)
	ObserveLocalSample(v float32, err error)
}

type Options struct {
	Alive    *alive.Alive
	Radio    radio.Transport
	Decoder  *protocol.Decoder
	Router   *router.Table
	Uplink   uplink.Publisher
	Sampler  adc.Sampler // nil disables local sample
	LocalID  string
	Poll     time.Duration
	Log      *log2.Log
	Observer Observer // optional
}

type Loop struct {
	Options
	state     uint32
	stat      Stat
	closeOnce sync.Once
}

func NewLoop(o Options) (*Loop, error) {
	errs := make([]error, 0)
	if o.Alive == nil {
		errs = append(errs, errors.NotValidf("gateway alive=nil"))
	}
	if o.Radio == nil {
		errs = append(errs, errors.NotValidf("gateway radio=nil"))
	}
	if o.Router == nil {
		errs = append(errs, errors.NotValidf("gateway router=nil"))
	}
	if o.Uplink == nil {
		errs = append(errs, errors.NotValidf("gateway uplink=nil"))
	}
	if o.Sampler != nil && o.LocalID == "" {
		errs = append(errs, errors.NotValidf("gateway local sensor id empty"))
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, err
	}
	if o.Decoder == nil {
		o.Decoder = protocol.DefaultDecoder()
	}
	if o.Poll <= 0 {
		o.Poll = radio.DefaultPollInterval
	}
	return &Loop{Options: o}, nil
}

func (self *Loop) State() State { return State(atomic.LoadUint32(&self.state)) }

func (self *Loop) Stat() *Stat { return &self.stat }

// Snapshot is Stat with current loop state, safe from other goroutines.
func (self *Loop) Snapshot() StatSnapshot {
	s := self.stat.Snapshot()
	s.State = self.State().String()
	return s
}

func (self *Loop) setState(s State) {
	atomic.StoreUint32(&self.state, uint32(s))
	if self.Observer != nil {
		self.Observer.ObserveState(s)
	}
}

// Run loops until shutdown token is stopped, then closes transport and uplink.
// Close errors are only logged, shutdown is always clean.
func (self *Loop) Run() error {
	for self.Step() {
	}
	return nil
}

// Step performs one iteration, returns false after termination.
func (self *Loop) Step() bool {
	if !self.Alive.IsRunning() {
		self.terminate()
		return false
	}

	self.setState(StateReceiving)
	frame, err := self.Radio.Receive(self.Poll)
	if err != nil {
		atomic.AddUint32(&self.stat.ReceiveErrors, 1)
		if self.Observer != nil {
			self.Observer.ObserveReceiveError(err)
		}
		self.Log.Error(errors.Annotate(err, "gateway receive"))
		// transport in trouble must not spin the CPU
		helpers.SleepAlive(self.Alive, self.Poll)
		self.setState(StateIdle)
		return true
	}
	if frame == nil {
		self.setState(StateIdle)
		return true
	}
	self.handleFrame(frame)
	self.setState(StateIdle)
	return true
}

func (self *Loop) handleFrame(frame *radio.Frame) {
	atomic.AddUint32(&self.stat.Frames, 1)
	self.stat.LastFrame.SetNow()
	if self.Observer != nil {
		self.Observer.ObserveFrame(frame.From, len(frame.Data))
	}

	self.setState(StateDecoding)
	p, err := self.Decoder.Decode(frame.Data)
	if self.Observer != nil {
		self.Observer.ObserveDecode(&p, err)
	}
	if err != nil {
		atomic.AddUint32(&self.stat.DecodeErrors, 1)
		self.Log.Errorf("gateway from=%d data=%x decode err=%v", frame.From, frame.Data, err)
		return
	}
	atomic.AddUint32(&self.stat.Records, uint32(len(p.Records)))
	atomic.AddUint32(&self.stat.Skipped, uint32(p.Skipped))
	self.Log.Info(FormatFrameLine(frame.From, &p))
	if p.Skipped != 0 || p.Trailing != 0 {
		self.Log.Debugf("gateway from=%d seq=%d skipped=%d trailing=%d", frame.From, p.Seq, p.Skipped, p.Trailing)
	}

	self.setState(StatePublishing)
	ctx := context.Background()
	for _, r := range p.Records {
		id, err := self.Router.Lookup(frame.From, r.Tag)
		if err != nil {
			atomic.AddUint32(&self.stat.RouteMisses, 1)
			if self.Observer != nil {
				self.Observer.ObserveRouteMiss(router.Key{Node: frame.From, Tag: r.Tag})
			}
			self.Log.Error(errors.Annotatef(err, "gateway drop %s", r.String()))
			continue
		}
		self.publish(ctx, id, r.Value)
	}
	self.publishLocal(ctx)
}

func (self *Loop) publishLocal(ctx context.Context) {
	if self.Sampler == nil {
		return
	}
	v, err := adc.Sample(self.Sampler)
	if self.Observer != nil {
		self.Observer.ObserveLocalSample(v, err)
	}
	if err != nil {
		atomic.AddUint32(&self.stat.SampleErrors, 1)
		self.Log.Error(errors.Annotate(err, "gateway local sample"))
		return
	}
	self.stat.setLastSample(v)
	self.Log.Debugf("gateway local=%.2f", v)
	self.publish(ctx, self.LocalID, v)
}

func (self *Loop) publish(ctx context.Context, id string, v float32) {
	err := self.Uplink.Publish(ctx, id, v)
	if self.Observer != nil {
		self.Observer.ObservePublish(id, err)
	}
	if err != nil {
		atomic.AddUint32(&self.stat.PublishErrors, 1)
		self.Log.Error(errors.Annotatef(err, "gateway publish value=%s", uplink.FormatValue(v)))
		return
	}
	atomic.AddUint32(&self.stat.Published, 1)
}

func (self *Loop) terminate() {
	self.setState(StateTerminating)
	self.closeOnce.Do(func() {
		errs := []error{
			errors.Annotate(self.Radio.Close(), "radio close"),
			errors.Annotate(self.Uplink.Close(), "uplink close"),
		}
		if self.Sampler != nil {
			errs = append(errs, errors.Annotate(self.Sampler.Close(), "adc close"))
		}
		if err := helpers.FoldErrors(errs); err != nil {
			self.Log.Error(err)
		}
		self.Log.Infof("gateway stopped frames=%d published=%d", atomic.LoadUint32(&self.stat.Frames), atomic.LoadUint32(&self.stat.Published))
	})
}

// FormatFrameLine renders "#2 #7 23.50C 410.20"
func FormatFrameLine(from uint8, p *protocol.Packet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d #%d", from, p.Seq)
	for _, r := range p.Records {
		unit := ""
		if spec, ok := protocol.LookupSpec(r.Tag); ok {
			unit = spec.Unit
		}
		fmt.Fprintf(&b, " %2.2f%s", r.Value, unit)
	}
	return b.String()
}
