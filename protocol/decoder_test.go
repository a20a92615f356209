package protocol

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func formatRecords(rs []Record) string {
	ss := make([]string, len(rs))
	for i, r := range rs {
		ss[i] = r.String()
	}
	return strings.Join(ss, ",")
}

func TestDecode(t *testing.T) {
	t.Parallel()
	type Case struct {
		name      string
		input     string
		expect    string
		expectErr string
	}
	cases := []Case{
		{"empty", "", "", "packet empty"},
		{"seq-only", "07", "", ""},
		{"temperature", EncodeHex(1, Record{TagTemperature, 23.5}), "temperature=23.50C", ""},
		{"scenario-temperature-co2", EncodeHex(7, Record{TagTemperature, 23.5}, Record{TagCO2, 410.2}), "temperature=23.50C,co2=410.20", ""},
		{"all", EncodeHex(9,
			Record{TagTemperature, 21.25}, Record{TagIR, 1.5}, Record{TagMicEnvelope, 42}, Record{TagCO2, 800}),
			"temperature=21.25C,ir=1.50V,mic_envelope=42.00dB,co2=800.00", ""},
		{"unknown-leading", "07ff" + EncodeHex(0, Record{TagIR, 2})[2:], "ir=2.00V", ""},
		{"unknown-between", "07" + EncodeHex(0, Record{TagTemperature, 1})[2:] + "aabb" + EncodeHex(0, Record{TagCO2, 2})[2:],
			"temperature=1.00C,co2=2.00", ""},
		{"mic-audio-not-probed", "0702", "", ""},
		{"mic-audio-value-skipped", EncodeHex(1, Record{TagMicAudio, 0}, Record{TagCO2, 5}), "co2=5.00", ""},
		{"mic-audio-value-looks-like-tags", EncodeHex(1, Record{TagTemperature, 3}, Record{TagMicAudio, 0}, Record{TagCO2, 5}),
			"temperature=3.00C,co2=5.00", ""},
		{"truncated-tag-only", "0700", "", "packet truncated tag=temperature at=1 need=4 have=0"},
		{"truncated-value", "0700000080", "", "packet truncated tag=temperature at=1 need=4 have=3"},
		{"truncated-second", EncodeHex(7, Record{TagTemperature, 23.5}) + "0400", "temperature=23.50C",
			"packet truncated tag=co2 at=6 need=4 have=1"},
		{"out-of-order-stops", EncodeHex(3, Record{TagCO2, 1}, Record{TagTemperature, 2}), "co2=1.00", ""},
	}
	rand.New(rand.NewSource(time.Now().UnixNano())).Shuffle(len(cases), func(i int, j int) { cases[i], cases[j] = cases[j], cases[i] })
	d := DefaultDecoder()
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			input, err := hex.DecodeString(c.input)
			if err != nil {
				t.Fatalf("invalid input=%s err='%v'", c.input, err)
			}
			p, err := d.Decode(input)
			errString := ""
			if err != nil {
				errString = err.Error()
			}
			assert.Equal(t, c.expectErr, errString, "input=%s", c.input)
			assert.Equal(t, c.expect, formatRecords(p.Records), "input=%s", c.input)
		})
	}
}

func TestDecodeScenario(t *testing.T) {
	t.Parallel()
	b := []byte{0x07, 0x00}
	b = append(b, 0x00, 0x00, 0xbc, 0x41) // 23.5
	b = append(b, 0x04)
	b = append(b, 0x9a, 0x19, 0xcd, 0x43) // 410.2
	p, err := DefaultDecoder().Decode(b)
	require.NoError(t, err)
	assert.Equal(t, byte(7), p.Seq)
	assert.Equal(t, []Record{{TagTemperature, 23.5}, {TagCO2, 410.2}}, p.Records)
	assert.Equal(t, 0, p.Skipped)
	assert.Equal(t, 0, p.Trailing)
}

func TestDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	order := []Tag{TagTemperature, TagIR, TagMicEnvelope, TagCO2}
	d := DefaultDecoder()
	for iter := 0; iter < 500; iter++ {
		seq := byte(rnd.Intn(256))
		var records []Record
		for _, tag := range order {
			if rnd.Intn(2) == 0 {
				continue
			}
			records = append(records, Record{Tag: tag, Value: float32(rnd.NormFloat64() * 1000)})
		}
		b := MustEncode(seq, records...)
		p, err := d.Decode(b)
		require.NoError(t, err, "input=%x", b)
		assert.Equal(t, seq, p.Seq)
		assert.Equal(t, len(records), len(p.Records), "input=%x", b)
		for i := range records {
			assert.Equal(t, records[i].Tag, p.Records[i].Tag)
			// bit exact, NaN is not produced by NormFloat64
			assert.Equal(t, records[i].Value, p.Records[i].Value)
		}
	}
}

func TestDecodeTruncationSafety(t *testing.T) {
	t.Parallel()
	full := MustEncode(7,
		Record{TagTemperature, 23.5}, Record{TagIR, 0.5}, Record{TagMicEnvelope, 61}, Record{TagCO2, 410.2})
	d := DefaultDecoder()
	// record boundaries: 1, 6, 11, 16, 21
	for n := 0; n < len(full); n++ {
		p, err := d.Decode(full[:n])
		switch {
		case n == 0:
			assert.Equal(t, ErrEmptyFrame, err)
		case (n-1)%5 == 0:
			require.NoError(t, err, "len=%d", n)
			assert.Equal(t, (n-1)/5, len(p.Records), "len=%d", n)
		default:
			require.Error(t, err, "len=%d", n)
			te, ok := errors.Cause(err).(*TruncatedError)
			require.True(t, ok, "len=%d err=%v", n, err)
			assert.Equal(t, (n-1)/5, len(p.Records), "len=%d", n)
			assert.Equal(t, 4, te.Need)
			assert.True(t, IsParseError(err))
		}
	}
}

func TestDecodeUnknownTagTolerance(t *testing.T) {
	t.Parallel()
	d := DefaultDecoder()
	clean := MustEncode(1, Record{TagTemperature, 1}, Record{TagCO2, 2})
	for junk := 5; junk < 256; junk++ {
		b := append([]byte{1, byte(junk)}, clean[1:]...)
		p, err := d.Decode(b)
		require.NoError(t, err, "junk=%02x", junk)
		assert.Equal(t, 1, p.Skipped, "junk=%02x", junk)
		assert.Equal(t, []Record{{TagTemperature, 1}, {TagCO2, 2}}, p.Records, "junk=%02x", junk)
	}
}

func TestDecodeSkipsNotProbedSensor(t *testing.T) {
	t.Parallel()
	d := DefaultDecoder()
	p, err := d.Decode(MustEncode(1, Record{TagMicAudio, 0}, Record{TagCO2, 5}))
	require.NoError(t, err)
	assert.Equal(t, []Record{{TagCO2, 5}}, p.Records)
	assert.Equal(t, 5, p.Skipped)
	assert.Equal(t, 0, p.Trailing)

	// value cut short is skipped to the end, not reported as truncated
	p, err = d.Decode([]byte{1, byte(TagMicAudio), 0, 0})
	require.NoError(t, err)
	assert.Len(t, p.Records, 0)
	assert.Equal(t, 3, p.Skipped)

	// sensor left out of custom probe order behaves the same
	d, err = NewDecoderNames([]string{"temperature", "co2"})
	require.NoError(t, err)
	p, err = d.Decode(MustEncode(2, Record{TagTemperature, 1}, Record{TagIR, 0}, Record{TagCO2, 2}))
	require.NoError(t, err)
	assert.Equal(t, []Record{{TagTemperature, 1}, {TagCO2, 2}}, p.Records)
	assert.Equal(t, 5, p.Skipped)
}

func TestNewDecoderNames(t *testing.T) {
	t.Parallel()
	d, err := NewDecoderNames([]string{"co2", "temperature"})
	require.NoError(t, err)
	b := MustEncode(1, Record{TagCO2, 5}, Record{TagTemperature, 6})
	p, err := d.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "co2=5.00,temperature=6.00C", formatRecords(p.Records))

	_, err = NewDecoderNames([]string{"humidity"})
	assert.True(t, errors.IsNotValid(err), fmt.Sprint(err))
	_, err = NewDecoderNames([]string{"co2", "co2"})
	assert.True(t, errors.IsNotValid(err), fmt.Sprint(err))

	assert.Len(t, DefaultDecoder().Probes(), 4)
}

func TestEncodeOverflow(t *testing.T) {
	t.Parallel()
	rs := make([]Record, 12)
	_, err := Encode(0, rs...)
	assert.Equal(t, ErrPacketOverflow, errors.Cause(err))
}

func BenchmarkDecode(b *testing.B) {
	input := MustEncode(7,
		Record{TagTemperature, 23.5}, Record{TagIR, 0.5}, Record{TagMicEnvelope, 61}, Record{TagCO2, 410.2})
	d := DefaultDecoder()
	b.ReportAllocs()
	b.SetBytes(int64(len(input)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = d.Decode(input)
	}
}
