// Package metrics exports gateway counters to prometheus.
package metrics

import (
	"strconv"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/temoto/rfgate/gateway"
	"github.com/temoto/rfgate/protocol"
	"github.com/temoto/rfgate/router"
)

const namespace = "rfgate"

// Metrics owns separate registry, so tests and multiple instances do not collide.
type Metrics struct {
	Registry *prometheus.Registry

	Frames        *prometheus.CounterVec
	DecodeErrors  *prometheus.CounterVec
	Records       *prometheus.CounterVec
	SkippedBytes  prometheus.Counter
	RouteMisses   *prometheus.CounterVec
	Publish       *prometheus.CounterVec
	ReceiveErrors prometheus.Counter
	SampleErrors  prometheus.Counter
	LoggedErrors  prometheus.Counter
	LocalSample   prometheus.Gauge
	LoopState     prometheus.Gauge
	HTTPRequests  *prometheus.CounterVec
}

var _ gateway.Observer = &Metrics{}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,

		Frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Radio frames received, by sender node",
		}, []string{"node"}),
		DecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Frames dropped by decoder",
		}, []string{"kind"}),
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_decoded_total",
			Help:      "Measurement records decoded, by sensor",
		}, []string{"sensor"}),
		SkippedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_bytes_total",
			Help:      "Unknown tag bytes stepped over by decoder",
		}),
		RouteMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_misses_total",
			Help:      "Records dropped without configured backend id",
		}, []string{"node", "sensor"}),
		Publish: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Uplink publish attempts by result",
		}, []string{"result"}),
		ReceiveErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Radio transport receive failures",
		}),
		SampleErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "local_sample_errors_total",
			Help:      "Local ADC read failures",
		}),
		LoggedErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logged_errors_total",
			Help:      "Errors written to log",
		}),
		LocalSample: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "local_sample",
			Help:      "Last converted local ADC value",
		}),
		LoopState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_state",
			Help:      "Gateway loop state: 0 idle, 1 receiving, 2 decoding, 3 publishing, 4 terminating",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diag_http_requests_total",
			Help:      "Diagnostic HTTP requests",
		}, []string{"method", "path", "status"}),
	}
}

// CountError fits log2.ErrorFunc.
func (self *Metrics) CountError(error) { self.LoggedErrors.Inc() }

func (self *Metrics) ObserveState(s gateway.State) { self.LoopState.Set(float64(s)) }

func (self *Metrics) ObserveReceiveError(error) { self.ReceiveErrors.Inc() }

func (self *Metrics) ObserveFrame(from uint8, size int) {
	self.Frames.WithLabelValues(strconv.Itoa(int(from))).Inc()
}

func (self *Metrics) ObserveDecode(p *protocol.Packet, err error) {
	if err != nil {
		self.DecodeErrors.WithLabelValues(DecodeErrorKind(err)).Inc()
		return
	}
	for _, r := range p.Records {
		self.Records.WithLabelValues(r.Tag.String()).Inc()
	}
	self.SkippedBytes.Add(float64(p.Skipped))
}

func (self *Metrics) ObserveRouteMiss(k router.Key) {
	self.RouteMisses.WithLabelValues(strconv.Itoa(int(k.Node)), k.Tag.String()).Inc()
}

func (self *Metrics) ObservePublish(id string, err error) {
	if err != nil {
		self.Publish.WithLabelValues("error").Inc()
		return
	}
	self.Publish.WithLabelValues("ok").Inc()
}

func (self *Metrics) ObserveLocalSample(v float32, err error) {
	if err != nil {
		self.SampleErrors.Inc()
		return
	}
	self.LocalSample.Set(float64(v))
}

func DecodeErrorKind(err error) string {
	switch e := errors.Cause(err); {
	case e == protocol.ErrEmptyFrame:
		return "empty"
	case isTruncated(e):
		return "truncated"
	}
	return "other"
}

func isTruncated(err error) bool {
	_, ok := err.(*protocol.TruncatedError)
	return ok
}
