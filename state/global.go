package state

import (
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/rfgate/gateway"
	"github.com/temoto/rfgate/hardware/adc"
	"github.com/temoto/rfgate/hardware/radio"
	"github.com/temoto/rfgate/log2"
	"github.com/temoto/rfgate/protocol"
	"github.com/temoto/rfgate/router"
	"github.com/temoto/rfgate/uplink"
)

// Global owns process wide objects. Hardware is opened lazily, once;
// tests preset Hardware fields with mocks before first access.
type Global struct {
	Alive    *alive.Alive
	Config   *Config
	Hardware struct {
		Radio   radio.Transport
		Sampler adc.Sampler
	}
	Log    *log2.Log
	Uplink uplink.Publisher

	decoder *protocol.Decoder
	router  *router.Table

	initRadioOnce   sync.Once
	initSamplerOnce sync.Once
	initUplinkOnce  sync.Once
	radioErr        error
	samplerErr      error
	uplinkErr       error
}

func NewGlobal(log *log2.Log) *Global {
	if log == nil {
		panic("code error NewGlobal() log=nil")
	}
	return &Global{
		Alive: alive.NewAlive(),
		Log:   log,
	}
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(cfg *Config) error {
	g.Config = cfg
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}
	if err := cfg.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}
	var err error
	if g.decoder, err = cfg.Decoder(); err != nil {
		return err
	}
	if g.router, err = cfg.RouteTable(); err != nil {
		return err
	}
	g.Log.Debugf("config: routes=%d local=%s probe=%v", g.router.Len(), cfg.LocalID(), cfg.Protocol.ProbeOrder)
	return nil
}

func (g *Global) MustInit(cfg *Config) {
	if err := g.Init(cfg); err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

func (g *Global) Decoder() *protocol.Decoder { return g.decoder }
func (g *Global) Router() *router.Table       { return g.router }

// Radio builds transport by config, Init is caller's job.
func (g *Global) Radio() (radio.Transport, error) {
	g.initRadioOnce.Do(func() {
		defer recoverFatal(g.Log) // fix sync.Once silent panic
		if g.Hardware.Radio != nil {
			return
		}
		radioLog := g.Log.Clone(log2.LInfo)
		if g.Config.Radio.LogDebug {
			radioLog.SetLevel(log2.LDebug)
		}
		g.Hardware.Radio, g.radioErr = radio.New(g.Config.Radio, radioLog)
		g.radioErr = errors.Annotatef(g.radioErr, "config: radio.driver=%s", g.Config.Radio.Driver)
	})
	return g.Hardware.Radio, g.radioErr
}

// Sampler returns nil,nil with adc.driver=none.
func (g *Global) Sampler() (adc.Sampler, error) {
	g.initSamplerOnce.Do(func() {
		defer recoverFatal(g.Log)
		if g.Hardware.Sampler != nil {
			return
		}
		g.Hardware.Sampler, g.samplerErr = adc.New(g.Config.Adc)
		g.samplerErr = errors.Annotatef(g.samplerErr, "config: adc.spi_bus=%s", g.Config.Adc.SpiBus)
		if g.Hardware.Sampler == nil && g.samplerErr == nil {
			g.Log.Infof("adc: local sample disabled, set adc.driver=spi to publish %s", g.Config.LocalID())
		}
	})
	return g.Hardware.Sampler, g.samplerErr
}

func (g *Global) UplinkPublisher() (uplink.Publisher, error) {
	g.initUplinkOnce.Do(func() {
		defer recoverFatal(g.Log)
		if g.Uplink != nil {
			return
		}
		uplinkLog := g.Log.Clone(log2.LInfo)
		if g.Config.Uplink.LogDebug {
			uplinkLog.SetLevel(log2.LDebug)
		}
		var e *uplink.EasyIoT
		e, g.uplinkErr = uplink.NewEasyIoT(g.Config.Uplink, nil, uplinkLog)
		if g.uplinkErr == nil {
			g.Uplink = e
		}
	})
	return g.Uplink, g.uplinkErr
}

// NewLoop assembles gateway from configured parts, observer is optional.
func (g *Global) NewLoop(observer gateway.Observer) (*gateway.Loop, error) {
	r, err := g.Radio()
	if err != nil {
		return nil, err
	}
	s, err := g.Sampler()
	if err != nil {
		return nil, err
	}
	u, err := g.UplinkPublisher()
	if err != nil {
		return nil, err
	}
	o := gateway.Options{
		Alive:    g.Alive,
		Radio:    r,
		Decoder:  g.decoder,
		Router:   g.router,
		Uplink:   u,
		Sampler:  s,
		LocalID:  g.Config.LocalID(),
		Poll:     g.Config.PollInterval(),
		Log:      g.Log,
		Observer: observer,
	}
	return gateway.NewLoop(o)
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(errors.ErrorStack(err))
	}
}

func recoverFatal(log *log2.Log) {
	if x := recover(); x != nil {
		log.Fatal(x)
	}
}
