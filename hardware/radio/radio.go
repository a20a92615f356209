// Package radio is the gateway side of the acknowledged datagram link to sensor nodes.
// Radio chip itself (RFM69 + reliable datagram firmware) sits behind a bridge;
// this package only moves opaque frames and radio parameters.
package radio

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rfgate/helpers"
	"github.com/temoto/rfgate/log2"
)

// MaxMessageLen is RFM69 payload limit.
const MaxMessageLen = 60

const DefaultPollInterval = 200 * time.Millisecond

type Frame struct {
	From uint8
	Data []byte
}

func (f *Frame) String() string { return fmt.Sprintf("from=%d data=%x", f.From, f.Data) }

type Params struct {
	Frequency    float64 `json:"frequency"` // MHz
	Power        int     `json:"power"`     // dBm
	NodeAddress  uint8   `json:"node"`
	GroupAddress uint8   `json:"group"`
}

// Transport contract:
// - Init connects, failure is fatal for the process
// - Receive blocks at most timeout, returns nil,nil on timeout
// - frames are acknowledged to sender by the link, delivered once
type Transport interface {
	Init() error
	Configure(Params) error
	Receive(timeout time.Duration) (*Frame, error)
	Close() error
}

// Error is link/hardware failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("radio %s: %v", e.Op, e.Err) }

func IsTransportError(err error) bool {
	_, ok := errors.Cause(err).(*Error)
	return ok
}

type Config struct { //nolint:maligned
	Driver       string  `hcl:"driver"`
	LogDebug     bool    `hcl:"log_debug"`
	Frequency    float64 `hcl:"frequency"`
	Power        int     `hcl:"power"`
	NodeAddress  int     `hcl:"node_address"`
	GroupAddress int     `hcl:"group_address"`
	PollMs       int     `hcl:"poll_ms"`

	MqttBroker      string `hcl:"mqtt_broker"`
	MqttClientID    string `hcl:"mqtt_client_id"`
	MqttTopicPrefix string `hcl:"mqtt_topic_prefix"`
	MqttUsername    string `hcl:"mqtt_username"`
	MqttPassword    string `hcl:"mqtt_password"` // secret
	ConnectAttempts int    `hcl:"connect_attempts"`

	StreamDevice string `hcl:"stream_device"`

	ResetPinChip string `hcl:"reset_pin_chip"`
	ResetPin     int    `hcl:"reset_pin"`
}

func (c *Config) Params() Params {
	return Params{
		Frequency:    c.Frequency,
		Power:        c.Power,
		NodeAddress:  uint8(c.NodeAddress),
		GroupAddress: uint8(c.GroupAddress),
	}
}

func (c *Config) Validate() error {
	errs := make([]error, 0)
	switch c.Driver {
	case "mqtt":
		if c.MqttBroker == "" {
			errs = append(errs, errors.NotValidf("radio.mqtt_broker empty"))
		}
	case "stream":
		if c.StreamDevice == "" {
			errs = append(errs, errors.NotValidf("radio.stream_device empty"))
		}
	default:
		errs = append(errs, errors.NotValidf("radio.driver=%q valid: mqtt, stream", c.Driver))
	}
	if c.NodeAddress < 0 || c.NodeAddress > 255 {
		errs = append(errs, errors.NotValidf("radio.node_address=%d", c.NodeAddress))
	}
	if c.GroupAddress < 0 || c.GroupAddress > 255 {
		errs = append(errs, errors.NotValidf("radio.group_address=%d", c.GroupAddress))
	}
	return helpers.FoldErrors(errs)
}

// New builds transport by config.Driver, nothing is opened until Init.
func New(c Config, log *log2.Log) (Transport, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Driver {
	case "mqtt":
		return NewMqtt(c, log), nil
	case "stream":
		return NewStream(c.StreamDevice, log), nil
	}
	panic("code error radio.New driver=" + c.Driver)
}
