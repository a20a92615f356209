// Package router maps (node address, sensor tag) to backend virtual sensor id.
// Table is built once from configuration and only read afterwards,
// so adding a node is a config change.
package router

import (
	"fmt"
	"sort"

	"github.com/juju/errors"
	"github.com/temoto/rfgate/helpers"
	"github.com/temoto/rfgate/protocol"
)

type Key struct {
	Node uint8
	Tag  protocol.Tag
}

func (k Key) String() string { return fmt.Sprintf("node=%d sensor=%s", k.Node, k.Tag.String()) }

type Route struct {
	Key
	ID string
}

type UnknownRouteError struct{ Key }

func (e *UnknownRouteError) Error() string { return "route not found " + e.Key.String() }

func IsUnknownRoute(err error) bool {
	_, ok := errors.Cause(err).(*UnknownRouteError)
	return ok
}

type Table struct {
	m map[Key]string
}

// NewTable validates all routes and reports every problem at once.
func NewTable(routes []Route) (*Table, error) {
	t := &Table{m: make(map[Key]string, len(routes))}
	errs := make([]error, 0)
	for _, r := range routes {
		if r.ID == "" {
			errs = append(errs, errors.NotValidf("route %s empty id", r.Key.String()))
			continue
		}
		if prev, ok := t.m[r.Key]; ok {
			errs = append(errs, errors.NotValidf("route %s duplicate id=%s previous=%s", r.Key.String(), r.ID, prev))
			continue
		}
		t.m[r.Key] = r.ID
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, err
	}
	return t, nil
}

func MustNewTable(routes []Route) *Table {
	t, err := NewTable(routes)
	if err != nil {
		panic(err)
	}
	return t
}

func (self *Table) Lookup(node uint8, tag protocol.Tag) (string, error) {
	k := Key{Node: node, Tag: tag}
	if id, ok := self.m[k]; ok {
		return id, nil
	}
	return "", &UnknownRouteError{Key: k}
}

func (self *Table) Len() int { return len(self.m) }

// Routes returns sorted copy, for diagnostics.
func (self *Table) Routes() []Route {
	rs := make([]Route, 0, len(self.m))
	for k, id := range self.m {
		rs = append(rs, Route{Key: k, ID: id})
	}
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Node != rs[j].Node {
			return rs[i].Node < rs[j].Node
		}
		return rs[i].Tag < rs[j].Tag
	})
	return rs
}

// ReferenceRoutes is the two node deployment the gateway was built for.
func ReferenceRoutes() []Route {
	return []Route{
		{Key{2, protocol.TagTemperature}, "N5S0"},
		{Key{2, protocol.TagMicEnvelope}, "N6S0"},
		{Key{2, protocol.TagIR}, "N7S0"},
		{Key{2, protocol.TagCO2}, "N8S0"},
		{Key{3, protocol.TagTemperature}, "N9S0"},
		{Key{3, protocol.TagMicEnvelope}, "N10S0"},
		{Key{3, protocol.TagIR}, "N11S0"},
		{Key{3, protocol.TagCO2}, "N12S0"},
	}
}

const ReferenceLocalID = "N13S0"
