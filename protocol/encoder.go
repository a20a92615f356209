package protocol

import (
	"encoding/hex"

	"github.com/juju/errors"
)

var ErrPacketOverflow = errors.New("packet larger than max length")

// AppendRecord appends tag and little-endian float32 value.
func AppendRecord(b []byte, r Record) []byte {
	var buf [1 + FloatWidth]byte
	buf[0] = byte(r.Tag)
	PutFloat32LE(buf[1:], r.Value)
	return append(b, buf[:]...)
}

// Encode builds node side packet, used by tests and the cli.
func Encode(seq byte, records ...Record) ([]byte, error) {
	b := make([]byte, 1, 1+len(records)*(1+FloatWidth))
	b[0] = seq
	for _, r := range records {
		b = AppendRecord(b, r)
	}
	if len(b) > MaxPacketLen {
		return nil, errors.Annotatef(ErrPacketOverflow, "len=%d max=%d", len(b), MaxPacketLen)
	}
	return b, nil
}

func MustEncode(seq byte, records ...Record) []byte {
	b, err := Encode(seq, records...)
	if err != nil {
		panic(err)
	}
	return b
}

func EncodeHex(seq byte, records ...Record) string {
	return hex.EncodeToString(MustEncode(seq, records...))
}
