// Package protocol decodes sensor node telemetry packets.
//
// Wire layout, no separators and no length prefix:
//
//	seq:1 | tag:1 value:W | tag:1 value:W | ...
//
// Each recognized tag implies the width W of its value (4 bytes, little-endian
// IEEE-754 float32 for every sensor so far). Nodes send records in a canonical
// order, so the decoder walks its probe table exactly once per packet.
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/juju/errors"
)

// MaxPacketLen matches radio payload limit.
const MaxPacketLen = 60

const FloatWidth = 4

type Tag uint8

const (
	TagTemperature Tag = 0
	TagIR          Tag = 1
	TagMicAudio    Tag = 2
	TagMicEnvelope Tag = 3
	TagCO2         Tag = 4
)

type DecodeFunc func(b []byte) float32

// TagSpec is one probe table entry.
type TagSpec struct {
	Tag    Tag
	Name   string
	Unit   string
	Width  int
	Decode DecodeFunc
}

// Registry of sensor types nodes may send. Names are used in config.
var knownSpecs = []TagSpec{
	{Tag: TagTemperature, Name: "temperature", Unit: "C", Width: FloatWidth, Decode: DecodeFloat32LE},
	{Tag: TagIR, Name: "ir", Unit: "V", Width: FloatWidth, Decode: DecodeFloat32LE},
	{Tag: TagMicAudio, Name: "mic_audio", Unit: "", Width: FloatWidth, Decode: DecodeFloat32LE},
	{Tag: TagMicEnvelope, Name: "mic_envelope", Unit: "dB", Width: FloatWidth, Decode: DecodeFloat32LE},
	{Tag: TagCO2, Name: "co2", Unit: "", Width: FloatWidth, Decode: DecodeFloat32LE},
}

// DefaultProbeOrder is the canonical record order of deployed nodes.
// mic_audio is never sent over radio.
var DefaultProbeOrder = []string{"temperature", "ir", "mic_envelope", "co2"}

func LookupSpec(t Tag) (TagSpec, bool) {
	for _, s := range knownSpecs {
		if s.Tag == t {
			return s, true
		}
	}
	return TagSpec{}, false
}

func LookupName(name string) (TagSpec, bool) {
	for _, s := range knownSpecs {
		if s.Name == name {
			return s, true
		}
	}
	return TagSpec{}, false
}

func ParseTag(name string) (Tag, error) {
	s, ok := LookupName(name)
	if !ok {
		return 0, errors.NotValidf("sensor=%s", name)
	}
	return s.Tag, nil
}

func (t Tag) String() string {
	if s, ok := LookupSpec(t); ok {
		return s.Name
	}
	return fmt.Sprintf("tag%d", uint8(t))
}

// DecodeFloat32LE reads first 4 bytes, caller checks length.
func DecodeFloat32LE(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func PutFloat32LE(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

type Record struct {
	Tag   Tag
	Value float32
}

func (r Record) String() string {
	unit := ""
	if s, ok := LookupSpec(r.Tag); ok {
		unit = s.Unit
	}
	return fmt.Sprintf("%s=%2.2f%s", r.Tag.String(), r.Value, unit)
}

type Packet struct {
	Seq     byte
	Records []Record
	// Skipped counts unrecognized tag bytes stepped over.
	Skipped int
	// Trailing counts bytes left after probe table was exhausted.
	Trailing int
}
