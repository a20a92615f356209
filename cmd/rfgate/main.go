package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/rfgate/hardware/radio"
	"github.com/temoto/rfgate/log2"
	"github.com/temoto/rfgate/metrics"
	"github.com/temoto/rfgate/state"
	"golang.org/x/sys/unix"
)

var log = log2.NewStderr(log2.LInfo)

func main() {
	flagConfig := flag.String("config", "rfgate.hcl", "")
	flag.Parse()

	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	} else {
		// systemd journal adds timestamp
		log.SetFlags(log2.LServiceFlags)
	}
	log.Info("rfgate hello")

	m := metrics.New()
	log.SetErrorFunc(m.CountError)

	g := state.NewGlobal(log)
	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	g.MustInit(config)

	if err := startRadio(g); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	loop, err := g.NewLoop(m)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	var diag *metrics.Server
	if config.Diag.Listen != "" {
		diag = metrics.NewServer(config.Diag.Listen, m, loop.Snapshot, log)
		if err := diag.Start(); err != nil {
			log.Fatal(errors.ErrorStack(err))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("signal=%v stopping", sig)
		sdnotify(daemon.SdNotifyStopping)
		g.Alive.Stop()
	}()

	sdnotify(daemon.SdNotifyReady)
	log.Infof("rfgate running routes=%d local=%s poll=%v", g.Router().Len(), config.LocalID(), config.PollInterval())
	if err := loop.Run(); err != nil {
		g.Error(err)
	}

	if diag != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := diag.Shutdown(ctx); err != nil {
			g.Error(err, "diag shutdown")
		}
		cancel()
	}
	s := loop.Snapshot()
	log.Infof("rfgate bye frames=%d published=%d errors=%d", s.Frames, s.Published, s.PublishErrors+s.DecodeErrors+s.ReceiveErrors)
	os.Exit(0)
}

// startRadio brings link up before the loop, any failure here is fatal.
func startRadio(g *state.Global) error {
	rc := &g.Config.Radio
	if err := radio.ResetPulse(rc.ResetPinChip, uint32(rc.ResetPin)); err != nil {
		return err
	}
	r, err := g.Radio()
	if err != nil {
		return err
	}
	if err = r.Init(); err != nil {
		return errors.Annotate(err, "radio init")
	}
	if err = r.Configure(rc.Params()); err != nil {
		return errors.Annotate(err, "radio configure")
	}
	log.Infof("radio driver=%s %+v", rc.Driver, rc.Params())
	return nil
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Error(errors.Annotate(err, "sdnotify"))
	}
	return ok
}
