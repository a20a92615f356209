package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/rfgate/log2"
	"github.com/temoto/rfgate/protocol"
	"github.com/temoto/rfgate/router"
)

func newTestSession(t testing.TB) (*session, *bytes.Buffer) {
	buf := bytes.NewBuffer(nil)
	return &session{
		decoder: protocol.DefaultDecoder(),
		router:  router.MustNewTable(router.ReferenceRoutes()),
		localID: router.ReferenceLocalID,
		from:    2,
		log:     log2.NewTest(t, log2.LDebug),
		w:       buf,
	}, buf
}

func TestExecDecode(t *testing.T) {
	t.Parallel()
	s, buf := newTestSession(t)

	require.NoError(t, s.execLine("@07 00 0000bc41 04 9a19cd43"))
	out := buf.String()
	assert.Contains(t, out, "#2 #7 23.50C 410.20\n")
	assert.Contains(t, out, "-> N5S0\n")
	assert.Contains(t, out, "-> N8S0\n")

	buf.Reset()
	require.NoError(t, s.execLine("from=9 @070100000000"))
	assert.Equal(t, uint8(9), s.from)
	assert.Contains(t, buf.String(), "(no route)")
}

func TestExecErrors(t *testing.T) {
	t.Parallel()
	s, _ := newTestSession(t)

	assert.Error(t, s.execLine("@"))
	assert.Error(t, s.execLine("@0700bc"))
	assert.Error(t, s.execLine("from=300"))
	assert.Error(t, s.execLine("bogus"))
	assert.Equal(t, uint8(2), s.from)
}

func TestExecRoute(t *testing.T) {
	t.Parallel()
	s, buf := newTestSession(t)

	require.NoError(t, s.execLine("route"))
	out := buf.String()
	assert.Contains(t, out, "node=2 sensor=temperature  id=N5S0\n")
	assert.Contains(t, out, "node=3 sensor=co2          id=N12S0\n")
	assert.Contains(t, out, "local id=N13S0\n")

	buf.Reset()
	require.NoError(t, s.execLine("help log=no log=yes"))
	assert.Equal(t, usage, buf.String())
}
