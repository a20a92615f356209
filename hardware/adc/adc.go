// Package adc reads the gateway's own analog sensor.
// MCP3008 compatible 10 bit converter on SPI, single-ended channel.
package adc

import (
	"sync"

	"github.com/juju/errors"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

const (
	MaxRaw   = 1023
	VRef     = 3.3
	Scale    = 100 // 10mV/unit sensor output to engineering units
	Channels = 8
)

const DefaultSpiSpeed = 1 * physic.MegaHertz

type Sampler interface {
	SampleRaw() (uint16, error)
	Close() error
}

// Convert maps raw reading to published value: raw*3.3*100/1023.
func Convert(raw uint16) float32 {
	return float32(float64(raw) * VRef * Scale / MaxRaw)
}

// Sample is SampleRaw + Convert.
func Sample(s Sampler) (float32, error) {
	raw, err := s.SampleRaw()
	if err != nil {
		return 0, err
	}
	return Convert(raw), nil
}

type Config struct {
	Driver   string `hcl:"driver"`
	SpiBus   string `hcl:"spi_bus"`
	SpiMode  int    `hcl:"spi_mode"`
	SpiSpeed string `hcl:"spi_speed"`
	Channel  int    `hcl:"channel"`
}

func (c *Config) Validate() error {
	switch c.Driver {
	case "spi":
	case "", "none":
		return nil
	default:
		return errors.NotValidf("adc.driver=%q valid: spi, none", c.Driver)
	}
	if c.Channel < 0 || c.Channel >= Channels {
		return errors.NotValidf("adc.channel=%d", c.Channel)
	}
	if c.SpiSpeed != "" {
		var f physic.Frequency
		if err := f.Set(c.SpiSpeed); err != nil {
			return errors.Annotatef(err, "adc.spi_speed=%s", c.SpiSpeed)
		}
	}
	return nil
}

type SpiTxFunc func(send, recv []byte) error

type MCP3008 struct {
	mu      sync.Mutex
	channel uint8
	tx      SpiTxFunc
	port    spi.PortCloser // only for resource cleanup
	buf     [6]byte
}

// NewMCP3008 opens SPI bus through periph host drivers.
func NewMCP3008(c Config) (*MCP3008, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	port, err := spireg.Open(c.SpiBus)
	if err != nil {
		return nil, errors.Annotatef(err, "SPI Open bus=%s", c.SpiBus)
	}
	speed := DefaultSpiSpeed
	if c.SpiSpeed != "" {
		if err = speed.Set(c.SpiSpeed); err != nil {
			port.Close()
			return nil, errors.Annotate(err, "SPI speed parse")
		}
	}
	conn, err := port.Connect(speed, spi.Mode(c.SpiMode), 8)
	if err != nil {
		port.Close()
		return nil, errors.Annotate(err, "SPI Connect")
	}
	self := NewMCP3008Tx(uint8(c.Channel), conn.Tx)
	self.port = port
	return self, nil
}

func NewMCP3008Tx(channel uint8, tx SpiTxFunc) *MCP3008 {
	return &MCP3008{channel: channel & 7, tx: tx}
}

// SampleRaw: start bit, single-ended + channel, then 10 bits come back
// in low 2 bits of byte 1 and byte 2.
func (self *MCP3008) SampleRaw() (uint16, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	send, recv := self.buf[:3], self.buf[3:]
	send[0] = 0x01
	send[1] = 0x80 | self.channel<<4
	send[2] = 0
	recv[0], recv[1], recv[2] = 0, 0, 0
	if err := self.tx(send, recv); err != nil {
		return 0, errors.Annotatef(err, "adc channel=%d", self.channel)
	}
	return (uint16(recv[1])<<8)&0x300 | uint16(recv[2]), nil
}

func (self *MCP3008) Close() error {
	if self.port != nil {
		return self.port.Close()
	}
	return nil
}

// New returns nil Sampler for driver=none.
func New(c Config) (Sampler, error) {
	switch c.Driver {
	case "", "none":
		return nil, c.Validate()
	}
	m, err := NewMCP3008(c)
	if err != nil {
		return nil, err
	}
	return m, nil
}
