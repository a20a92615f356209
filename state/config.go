package state

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/rfgate/hardware/adc"
	"github.com/temoto/rfgate/hardware/radio"
	"github.com/temoto/rfgate/helpers"
	"github.com/temoto/rfgate/log2"
	"github.com/temoto/rfgate/protocol"
	"github.com/temoto/rfgate/router"
	"github.com/temoto/rfgate/uplink"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	LogDebug bool `hcl:"log_debug"`

	Radio radio.Config `hcl:"radio"`
	Adc   adc.Config   `hcl:"adc"`

	Protocol struct {
		ProbeOrder []string `hcl:"probe_order"`
	} `hcl:"protocol"`

	Routing struct {
		LocalID string        `hcl:"local_id"`
		Routes  []RouteConfig `hcl:"route"`
	} `hcl:"routing"`

	Uplink uplink.Config `hcl:"uplink"`

	Diag struct {
		Listen string `hcl:"listen"`
	} `hcl:"diag"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// RouteConfig is keyed by backend id: route "N5S0" { node = 2 sensor = "temperature" }
type RouteConfig struct {
	ID     string `hcl:"id,key"`
	Node   int    `hcl:"node"`
	Sensor string `hcl:"sensor"`
}

func (c *Config) PollInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.Radio.PollMs, radio.DefaultPollInterval)
}

// RouteTable converts route blocks, empty routing means reference deployment.
func (c *Config) RouteTable() (*router.Table, error) {
	if len(c.Routing.Routes) == 0 {
		return router.NewTable(router.ReferenceRoutes())
	}
	routes := make([]router.Route, 0, len(c.Routing.Routes))
	errs := make([]error, 0)
	for i, rc := range c.Routing.Routes {
		if rc.Node < 0 || rc.Node > 255 {
			errs = append(errs, errors.NotValidf("config routing.route[%d] node=%d", i, rc.Node))
			continue
		}
		tag, err := protocol.ParseTag(rc.Sensor)
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "config routing.route[%d]", i))
			continue
		}
		routes = append(routes, router.Route{Key: router.Key{Node: uint8(rc.Node), Tag: tag}, ID: rc.ID})
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, err
	}
	return router.NewTable(routes)
}

func (c *Config) LocalID() string {
	if c.Routing.LocalID == "" && len(c.Routing.Routes) == 0 {
		return router.ReferenceLocalID
	}
	return c.Routing.LocalID
}

func (c *Config) Decoder() (*protocol.Decoder, error) {
	if len(c.Protocol.ProbeOrder) == 0 {
		return protocol.DefaultDecoder(), nil
	}
	d, err := protocol.NewDecoderNames(c.Protocol.ProbeOrder)
	return d, errors.Annotate(err, "config protocol.probe_order")
}

// Validate reports all problems at once, startup must not continue on error.
func (c *Config) Validate() error {
	errs := make([]error, 0)
	if err := c.Radio.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Adc.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Decoder(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.RouteTable(); err != nil {
		errs = append(errs, err)
	}
	if c.Adc.Driver == "spi" && c.LocalID() == "" {
		errs = append(errs, errors.NotValidf("config routing.local_id empty with adc.driver=spi"))
	}
	if c.Uplink.BaseURL == "" {
		errs = append(errs, errors.NotValidf("config uplink.base_url empty"))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	// secrets live in config, do not echo content
	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	names = append([]string(nil), names...)
	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, err
		}
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
