// Package uplink writes measurements to the home automation backend.
// Best effort: one request per value, failure is returned to caller, never retried here.
package uplink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/rfgate/helpers"
	"github.com/temoto/rfgate/log2"
)

const DefaultTimeout = 10 * time.Second

type Publisher interface {
	Publish(ctx context.Context, id string, value float32) error
	Close() error
}

type Config struct {
	BaseURL    string `hcl:"base_url"`
	Username   string `hcl:"username"`
	Password   string `hcl:"password"` // secret
	Method     string `hcl:"method"`
	TimeoutSec int    `hcl:"timeout_sec"`
	LogDebug   bool   `hcl:"log_debug"`
}

// Error is publish failure, network or non-2xx response.
type Error struct {
	ID     string
	Status int // 0 if no response
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("uplink id=%s status=%d", e.ID, e.Status)
	}
	return fmt.Sprintf("uplink id=%s err=%v", e.ID, e.Err)
}

// FormatValue keeps backend compatible fixed 6 decimals.
func FormatValue(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 6, 32)
}

// EasyIoT talks to EasyIoT server virtual module API:
// <base>/Api/EasyIoT/Control/Module/Virtual/<id>/ControlLevel/<value>
type EasyIoT struct {
	base   *url.URL
	client *http.Client
	config Config
	log    *log2.Log
}

func NewEasyIoT(c Config, rt http.RoundTripper, log *log2.Log) (*EasyIoT, error) {
	if c.BaseURL == "" {
		return nil, errors.NotValidf("uplink base_url empty")
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, errors.Annotatef(err, "uplink base_url=%s", c.BaseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.NotValidf("uplink base_url=%s scheme", c.BaseURL)
	}
	if c.Method == "" {
		c.Method = http.MethodGet
	}
	c.Method = strings.ToUpper(c.Method)
	if rt == nil {
		rt = http.DefaultTransport
	}
	self := &EasyIoT{
		base: base,
		client: &http.Client{
			Transport: rt,
			Timeout:   helpers.IntSecondDefault(c.TimeoutSec, DefaultTimeout),
		},
		config: c,
		log:    log,
	}
	return self, nil
}

func (self *EasyIoT) URL(id string, value float32) string {
	u := *self.base
	u.Path = strings.TrimRight(u.Path, "/") +
		"/Api/EasyIoT/Control/Module/Virtual/" + id +
		"/ControlLevel/" + FormatValue(value)
	return u.String()
}

func (self *EasyIoT) Publish(ctx context.Context, id string, value float32) error {
	u := self.URL(id, value)
	req, err := http.NewRequestWithContext(ctx, self.config.Method, u, nil)
	if err != nil {
		return &Error{ID: id, Err: err}
	}
	if self.config.Username != "" || self.config.Password != "" {
		req.SetBasicAuth(self.config.Username, self.config.Password)
	}
	self.log.Debugf("uplink %s %s", req.Method, u)
	resp, err := self.client.Do(req)
	if err != nil {
		return &Error{ID: id, Err: err}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{ID: id, Status: resp.StatusCode}
	}
	return nil
}

func (self *EasyIoT) Close() error {
	self.client.CloseIdleConnections()
	return nil
}
