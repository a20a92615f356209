package helpers

import (
	"encoding/hex"
	"strings"
)

func MustHex(s string) []byte {
	b, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return b
}

// ParseHex accepts "0700", "07 00", "0x07 0x00" forms.
func ParseHex(s string) ([]byte, error) {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
	}
	return hex.DecodeString(strings.Join(fields, ""))
}
