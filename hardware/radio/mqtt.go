package radio

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/segmentio/encoding/json"
	"github.com/temoto/rfgate/log2"
)

const (
	defaultTopicPrefix     = "rfm69"
	defaultConnectAttempts = 5
	mqttNetworkTimeout     = 10 * time.Second
	mqttRxBuffer           = 16
)

// Topics:
//   <prefix>/rx/<from>  bridge -> gateway, payload is raw frame
//   <prefix>/config     gateway -> bridge, retained JSON Params
func TopicRx(prefix string) string     { return prefix + "/rx/+" }
func TopicConfig(prefix string) string { return prefix + "/config" }

type transportMqtt struct {
	config Config
	log    *log2.Log
	m      mqtt.Client
	rxCh   chan Frame
	prefix string

	// frames lost because loop did not keep up
	dropped uint32
}

func NewMqtt(c Config, log *log2.Log) *transportMqtt {
	prefix := strings.TrimRight(c.MqttTopicPrefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return &transportMqtt{
		config: c,
		log:    log,
		rxCh:   make(chan Frame, mqttRxBuffer),
		prefix: prefix,
	}
}

func (self *transportMqtt) Init() error {
	clientID := self.config.MqttClientID
	if clientID == "" {
		clientID = "rfgate"
	}
	opt := mqtt.NewClientOptions().
		AddBroker(self.config.MqttBroker).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetClientID(clientID).
		SetConnectTimeout(mqttNetworkTimeout).
		SetKeepAlive(mqttNetworkTimeout).
		SetPingTimeout(mqttNetworkTimeout).
		SetWriteTimeout(mqttNetworkTimeout).
		SetOrderMatters(true).
		SetOnConnectHandler(self.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			self.log.Errorf("radio: mqtt connection lost err=%v", err)
		})
	if self.config.MqttUsername != "" {
		opt.SetUsername(self.config.MqttUsername)
		opt.SetPassword(self.config.MqttPassword)
	}
	self.m = mqtt.NewClient(opt)

	attempts := self.config.ConnectAttempts
	if attempts <= 0 {
		attempts = defaultConnectAttempts
	}
	err := retry.Do(
		func() error { return self.tokenWait(self.m.Connect(), "connect") },
		retry.Attempts(uint(attempts)),
		retry.Delay(time.Second),
		retry.OnRetry(func(n uint, err error) {
			self.log.Errorf("radio: mqtt connect attempt=%d err=%v", n+1, err)
		}),
	)
	if err != nil {
		return &Error{Op: "init", Err: errors.Annotatef(err, "mqtt broker=%s", self.config.MqttBroker)}
	}
	return nil
}

// onConnect runs on every (re)connect, clean session loses subscriptions.
func (self *transportMqtt) onConnect(c mqtt.Client) {
	topic := TopicRx(self.prefix)
	t := c.Subscribe(topic, 1, self.onMessage)
	if err := self.tokenWait(t, "subscribe:"+topic); err != nil {
		return
	}
	self.log.Debugf("radio: mqtt subscribed topic=%s", topic)
}

func (self *transportMqtt) onMessage(_ mqtt.Client, msg mqtt.Message) {
	f, err := parseRxMessage(self.prefix, msg.Topic(), msg.Payload())
	if err != nil {
		self.log.Error(errors.Annotate(err, "radio: mqtt"))
		return
	}
	// paho router goroutine must not block, or Disconnect may hang
	select {
	case self.rxCh <- f:
	default:
		n := atomic.AddUint32(&self.dropped, 1)
		self.log.Errorf("radio: mqtt rx buffer full, drop from=%d len=%d dropped=%d", f.From, len(f.Data), n)
	}
}

func (self *transportMqtt) Dropped() uint32 { return atomic.LoadUint32(&self.dropped) }

func parseRxMessage(prefix, topic string, payload []byte) (Frame, error) {
	rest := strings.TrimPrefix(topic, prefix+"/rx/")
	if rest == topic || rest == "" {
		return Frame{}, errors.NotValidf("topic=%s", topic)
	}
	from, err := strconv.ParseUint(rest, 10, 8)
	if err != nil {
		return Frame{}, errors.NotValidf("topic=%s sender address", topic)
	}
	if len(payload) > MaxMessageLen {
		return Frame{}, errors.NotValidf("topic=%s payload len=%d > max=%d", topic, len(payload), MaxMessageLen)
	}
	data := make([]byte, len(payload))
	copy(data, payload)
	return Frame{From: uint8(from), Data: data}, nil
}

func (self *transportMqtt) Configure(p Params) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return &Error{Op: "configure", Err: err}
	}
	topic := TopicConfig(self.prefix)
	t := self.m.Publish(topic, 1, true, payload)
	if err := self.tokenWait(t, "publish:"+topic); err != nil {
		return &Error{Op: "configure", Err: err}
	}
	self.log.Debugf("radio: configured %s", payload)
	return nil
}

func (self *transportMqtt) Receive(timeout time.Duration) (*Frame, error) {
	tmr := time.NewTimer(timeout)
	defer tmr.Stop()
	select {
	case f := <-self.rxCh:
		return &f, nil
	case <-tmr.C:
		if !self.m.IsConnectionOpen() {
			return nil, &Error{Op: "receive", Err: errors.New("mqtt not connected")}
		}
		return nil, nil
	}
}

func (self *transportMqtt) Close() error {
	if self.m != nil {
		self.m.Disconnect(uint(mqttNetworkTimeout / time.Millisecond / 10))
	}
	return nil
}

func (self *transportMqtt) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(mqttNetworkTimeout) {
		return errors.Timeoutf("mqtt %s", tag)
	}
	if err := t.Error(); err != nil {
		return errors.Annotate(err, fmt.Sprintf("mqtt %s", tag))
	}
	return nil
}
