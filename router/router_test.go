package router

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/rfgate/protocol"
)

func TestLookup(t *testing.T) {
	t.Parallel()
	routes := ReferenceRoutes()
	table, err := NewTable(routes)
	require.NoError(t, err)
	assert.Equal(t, len(routes), table.Len())

	present := make(map[Key]string)
	for _, r := range routes {
		present[r.Key] = r.ID
	}
	for node := 0; node < 256; node++ {
		for tag := 0; tag < 8; tag++ {
			k := Key{Node: uint8(node), Tag: protocol.Tag(tag)}
			id, err := table.Lookup(k.Node, k.Tag)
			if expect, ok := present[k]; ok {
				require.NoError(t, err, k.String())
				assert.Equal(t, expect, id)
			} else {
				require.Error(t, err, k.String())
				assert.True(t, IsUnknownRoute(err))
				assert.Equal(t, "", id)
				assert.Equal(t, k, errors.Cause(err).(*UnknownRouteError).Key)
			}
		}
	}
}

func TestScenarioRoutes(t *testing.T) {
	t.Parallel()
	table := MustNewTable(ReferenceRoutes())
	id, err := table.Lookup(2, protocol.TagTemperature)
	require.NoError(t, err)
	assert.Equal(t, "N5S0", id)
	id, err = table.Lookup(2, protocol.TagCO2)
	require.NoError(t, err)
	assert.Equal(t, "N8S0", id)
	id, err = table.Lookup(3, protocol.TagCO2)
	require.NoError(t, err)
	assert.Equal(t, "N12S0", id)
	_, err = table.Lookup(4, protocol.TagCO2)
	assert.EqualError(t, err, "route not found node=4 sensor=co2")
}

func TestNewTableInvalid(t *testing.T) {
	t.Parallel()
	_, err := NewTable([]Route{
		{Key{2, protocol.TagIR}, "N7S0"},
		{Key{2, protocol.TagIR}, "N99S0"},
		{Key{3, protocol.TagIR}, ""},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors")
	assert.Contains(t, err.Error(), "route node=2 sensor=ir duplicate id=N99S0 previous=N7S0 not valid")
	assert.Contains(t, err.Error(), "route node=3 sensor=ir empty id not valid")
}

func TestRoutesSorted(t *testing.T) {
	t.Parallel()
	table := MustNewTable([]Route{
		{Key{3, protocol.TagCO2}, "c"},
		{Key{2, protocol.TagCO2}, "b"},
		{Key{2, protocol.TagTemperature}, "a"},
	})
	rs := table.Routes()
	require.Len(t, rs, 3)
	assert.Equal(t, "a", rs[0].ID)
	assert.Equal(t, "b", rs[1].ID)
	assert.Equal(t, "c", rs[2].ID)
}
