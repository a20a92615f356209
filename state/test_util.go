package state

import (
	"testing"

	"github.com/temoto/rfgate/hardware/adc"
	"github.com/temoto/rfgate/hardware/radio"
	"github.com/temoto/rfgate/log2"
	"github.com/temoto/rfgate/uplink"
)

const testBaseConfig = `
radio { driver = "mqtt" mqtt_broker = "tcp://127.0.0.1:1883" }
uplink { base_url = "http://127.0.0.1:8080" }
`

type TestHardware struct {
	Radio   *radio.Mock
	Sampler *adc.Mock
	Uplink  *uplink.Mock
}

// NewTestGlobal reads minimal valid config plus confString, hardware is mocked.
func NewTestGlobal(t testing.TB, confString string) (*Global, *TestHardware) {
	fs := NewMockFullReader(map[string]string{
		"test-base":   testBaseConfig,
		"test-inline": confString,
	})

	log := log2.NewTest(t, log2.LDebug)
	log.SetFlags(log2.LTestFlags)
	g := NewGlobal(log)
	g.MustInit(MustReadConfig(log, fs, "test-base", "test-inline"))

	hw := &TestHardware{
		Radio:   radio.NewMock(),
		Sampler: &adc.Mock{},
		Uplink:  &uplink.Mock{},
	}
	g.Hardware.Radio = hw.Radio
	g.Hardware.Sampler = hw.Sampler
	g.Uplink = hw.Uplink
	return g, hw
}
