package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrNullHex = errors.New(`"null" is not a byte value; omit the field instead`)

// HexBytes is a byte-string SA field. It renders as 0x-prefixed lowercase hex.
type HexBytes []byte

func (h HexBytes) String() string {
	if len(h) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(h)
}

// ParseHex decodes a hex string with an optional 0x prefix. The empty string
// decodes to nil.
func ParseHex(s string) (HexBytes, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return nil, ErrNullHex
	}
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if s == "" {
		return nil, nil
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex %q", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed hex %q: %w", s, err)
	}
	return b, nil
}

func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *HexBytes) UnmarshalText(b []byte) error {
	v, err := ParseHex(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

func (h HexBytes) Clone() HexBytes {
	if h == nil {
		return nil
	}
	return append(HexBytes(nil), h...)
}
