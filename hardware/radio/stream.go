package radio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/segmentio/encoding/json"
	"github.com/temoto/alive/v2"
	"github.com/temoto/rfgate/helpers"
	"github.com/temoto/rfgate/log2"
)

// Stream bridge speaks line protocol over tty or FIFO:
//   bridge -> gateway: "<from> <hex payload>\n"
//   gateway -> bridge: "config <json Params>\n"
// Lines starting with '#' are bridge diagnostics and only logged.
type transportStream struct {
	alive   *alive.Alive
	backoff helpers.Backoff
	log     *log2.Log
	open    func(path string) (io.ReadWriteCloser, error)
	path    string
	rxCh    chan Frame

	mu        sync.Mutex
	f         io.ReadWriteCloser
	connected uint32 // atomic
}

func NewStream(path string, log *log2.Log) *transportStream {
	return &transportStream{
		alive:   alive.NewAlive(),
		backoff: helpers.Backoff{Min: 100 * time.Millisecond, Max: 10 * time.Second, K: 2},
		log:     log,
		open:    openStreamFile,
		path:    path,
		rxCh:    make(chan Frame, 16),
	}
}

func openStreamFile(path string) (io.ReadWriteCloser, error) {
	return os.OpenFile(path, syscall.O_RDWR|syscall.O_NOCTTY, 0600)
}

func (self *transportStream) Init() error {
	f, err := self.open(self.path)
	if err != nil {
		return &Error{Op: "init", Err: errors.Annotatef(err, "stream open path=%s", self.path)}
	}
	self.setFile(f)
	if !self.alive.Add(1) {
		return &Error{Op: "init", Err: errors.New("stream closed")}
	}
	go self.readLoop(f)
	return nil
}

func (self *transportStream) Configure(p Params) error {
	b, err := json.Marshal(p)
	if err != nil {
		return &Error{Op: "configure", Err: err}
	}
	line := make([]byte, 0, len(b)+8)
	line = append(line, "config "...)
	line = append(line, b...)
	line = append(line, '\n')

	self.mu.Lock()
	defer self.mu.Unlock()
	if self.f == nil {
		return &Error{Op: "configure", Err: errors.New("stream not connected")}
	}
	if err := helpers.WriteAll(self.f, line); err != nil {
		return &Error{Op: "configure", Err: errors.Annotatef(err, "stream write path=%s", self.path)}
	}
	return nil
}

func (self *transportStream) Receive(timeout time.Duration) (*Frame, error) {
	tmr := time.NewTimer(timeout)
	defer tmr.Stop()
	select {
	case f := <-self.rxCh:
		return &f, nil
	case <-self.alive.StopChan():
		return nil, &Error{Op: "receive", Err: errors.New("stream closed")}
	case <-tmr.C:
		if atomic.LoadUint32(&self.connected) == 0 {
			return nil, &Error{Op: "receive", Err: errors.Errorf("stream disconnected path=%s next retry in %v", self.path, self.backoff.Delay())}
		}
		return nil, nil
	}
}

func (self *transportStream) Close() error {
	self.alive.Stop()
	self.mu.Lock()
	var err error
	if self.f != nil {
		err = self.f.Close()
		self.f = nil
	}
	atomic.StoreUint32(&self.connected, 0)
	self.mu.Unlock()
	self.alive.Wait()
	return err
}

func (self *transportStream) setFile(f io.ReadWriteCloser) {
	self.mu.Lock()
	self.f = f
	self.mu.Unlock()
	if f != nil {
		atomic.StoreUint32(&self.connected, 1)
	} else {
		atomic.StoreUint32(&self.connected, 0)
	}
}

func (self *transportStream) readLoop(f io.ReadWriteCloser) {
	defer self.alive.Done()
	for {
		self.readFile(f)
		if !self.alive.IsRunning() {
			return
		}
		self.setFile(nil)
		_ = f.Close()
		self.backoff.Failure()
		if f = self.reopen(); f == nil {
			return
		}
	}
}

func (self *transportStream) readFile(f io.Reader) {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '#' {
			self.log.Debugf("radio: bridge %s", line)
			continue
		}
		frame, err := ParseStreamLine(line)
		if err != nil {
			self.log.Error(errors.Annotate(err, "radio: stream"))
			continue
		}
		select {
		case self.rxCh <- frame:
		case <-self.alive.StopChan():
			return
		}
	}
	if err := scanner.Err(); err != nil && self.alive.IsRunning() {
		self.log.Errorf("radio: stream read path=%s err=%v", self.path, err)
	} else if self.alive.IsRunning() {
		self.log.Errorf("radio: stream path=%s closed by bridge", self.path)
	}
}

// reopen returns nil when transport is closed.
func (self *transportStream) reopen() io.ReadWriteCloser {
	for {
		if !helpers.SleepAlive(self.alive, self.backoff.Delay()) {
			return nil
		}
		f, err := self.open(self.path)
		self.backoff.Update(err == nil)
		if err == nil && !self.alive.IsRunning() {
			_ = f.Close()
			return nil
		}
		if err == nil {
			self.log.Infof("radio: stream reopened path=%s", self.path)
			self.setFile(f)
			return f
		}
		self.log.Errorf("radio: stream reopen path=%s err=%v next=%v", self.path, err, self.backoff.Next())
	}
}

// ParseStreamLine parses "<from> <hex>", hex may contain spaces or be absent for empty frame.
func ParseStreamLine(line []byte) (Frame, error) {
	line = bytes.TrimSpace(line)
	head, tail := line, []byte(nil)
	if sp := bytes.IndexByte(line, ' '); sp >= 0 {
		head, tail = line[:sp], line[sp+1:]
	}
	from, err := strconv.ParseUint(string(head), 10, 8)
	if err != nil {
		return Frame{}, errors.NotValidf("stream line=%q sender address", line)
	}
	data, err := helpers.ParseHex(string(tail))
	if err != nil {
		return Frame{}, errors.Annotatef(err, "stream line=%q", line)
	}
	if len(data) > MaxMessageLen {
		return Frame{}, errors.NotValidf("stream line payload len=%d > max=%d", len(data), MaxMessageLen)
	}
	return Frame{From: uint8(from), Data: data}, nil
}

func FormatStreamLine(f Frame) string { return fmt.Sprintf("%d %x\n", f.From, f.Data) }
