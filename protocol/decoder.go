package protocol

import (
	"fmt"

	"github.com/juju/errors"
)

var ErrEmptyFrame = errors.New("packet empty")

// TruncatedError means recognized tag is not followed by full value.
type TruncatedError struct {
	Tag    Tag
	Offset int // of the tag byte
	Need   int
	Have   int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("packet truncated tag=%s at=%d need=%d have=%d", e.Tag.String(), e.Offset, e.Need, e.Have)
}

func IsParseError(err error) bool {
	switch errors.Cause(err).(type) {
	case *TruncatedError:
		return true
	}
	return errors.Cause(err) == ErrEmptyFrame
}

// Decoder is immutable after construction and safe for concurrent use.
type Decoder struct {
	probes []TagSpec
}

func NewDecoder(probes ...TagSpec) *Decoder {
	ps := make([]TagSpec, len(probes))
	copy(ps, probes)
	return &Decoder{probes: ps}
}

// NewDecoderNames builds probe table from sensor names, empty list means default order.
func NewDecoderNames(names []string) (*Decoder, error) {
	if len(names) == 0 {
		names = DefaultProbeOrder
	}
	specs := make([]TagSpec, 0, len(names))
	seen := make(map[Tag]struct{}, len(names))
	for _, name := range names {
		s, ok := LookupName(name)
		if !ok {
			return nil, errors.NotValidf("probe_order sensor=%s", name)
		}
		if _, dup := seen[s.Tag]; dup {
			return nil, errors.NotValidf("probe_order duplicate sensor=%s", name)
		}
		seen[s.Tag] = struct{}{}
		specs = append(specs, s)
	}
	return NewDecoder(specs...), nil
}

func DefaultDecoder() *Decoder {
	d, err := NewDecoderNames(DefaultProbeOrder)
	if err != nil {
		panic("code error DefaultProbeOrder: " + err.Error())
	}
	return d
}

func (self *Decoder) Probes() []TagSpec {
	ps := make([]TagSpec, len(self.probes))
	copy(ps, self.probes)
	return ps
}

func (self *Decoder) probeIndex(t Tag) int {
	for i, p := range self.probes {
		if p.Tag == t {
			return i
		}
	}
	return -1
}

// Decode walks probe table once, in order.
// Byte equal to current probe tag: value follows, emit record.
// Byte equal to other probe tag: current one is absent, try next probe without consuming.
// Known sensor tag absent from probe table: skip tag with its value, same probe.
// Byte unknown to registry: skip one byte, same probe.
// Skipped bytes are counted in Packet.Skipped.
// On error returned Packet holds records decoded before failure.
func (self *Decoder) Decode(b []byte) (Packet, error) {
	p := Packet{}
	if len(b) == 0 {
		return p, ErrEmptyFrame
	}
	p.Seq = b[0]
	i := 1
	for _, probe := range self.probes {
		for i < len(b) {
			tag := Tag(b[i])
			if tag == probe.Tag {
				break
			}
			if self.probeIndex(tag) >= 0 {
				break
			}
			n := self.skipLen(b, i)
			p.Skipped += n
			i += n
		}
		if i >= len(b) {
			return p, nil
		}
		if Tag(b[i]) != probe.Tag {
			continue
		}
		start := i + 1
		end := start + probe.Width
		if end > len(b) {
			return p, &TruncatedError{Tag: probe.Tag, Offset: i, Need: probe.Width, Have: len(b) - start}
		}
		p.Records = append(p.Records, Record{Tag: probe.Tag, Value: probe.Decode(b[start:end])})
		i = end
	}
	p.Trailing = len(b) - i
	return p, nil
}

// Value bytes of registered but not probed sensor must not be read as tags.
func (self *Decoder) skipLen(b []byte, i int) int {
	n := 1
	if spec, ok := LookupSpec(Tag(b[i])); ok {
		n += spec.Width
	}
	if i+n > len(b) {
		n = len(b) - i
	}
	return n
}
