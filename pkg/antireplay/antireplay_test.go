package antireplay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The mask packs only the 2W+1 window positions, so a window of 5 yields two
// bytes rather than a fixed-size buffer.
func TestDeriveBitmask(t *testing.T) {
	tests := []struct {
		name    string
		arsn    []byte
		arsnLen int
		arsnw   int
		abm     []byte
	}{
		{name: "default window", arsn: []byte{0x04}, arsnLen: 1, arsnw: 5, abm: []byte{0x03, 0xe0}},
		{name: "zero arsn", arsn: []byte{0x00}, arsnLen: 1, arsnw: 5, abm: []byte{0x03, 0xe0}},
		{name: "near ceiling", arsn: []byte{0xfe}, arsnLen: 1, arsnw: 5, abm: []byte{0x02, 0x00}},
		{name: "exhausted", arsn: []byte{0xff}, arsnLen: 1, arsnw: 5, abm: []byte{0x00, 0x00}},
		{name: "wider counter", arsn: []byte{0x00, 0xff}, arsnLen: 2, arsnw: 5, abm: []byte{0x03, 0xe0}},
		{name: "zero window", arsn: []byte{0x10}, arsnLen: 1, arsnw: 0, abm: []byte{0x00}},
		{name: "unbounded", arsn: nil, arsnLen: 0, arsnw: 3, abm: []byte{0x0e}},
		{name: "byte aligned window", arsn: []byte{0x01}, arsnLen: 4, arsnw: 8, abm: []byte{0x00, 0x7f, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abm, abmLen, err := DeriveBitmask(tt.arsn, tt.arsnLen, tt.arsnw)
			require.NoError(t, err)
			require.Equal(t, tt.abm, abm)
			require.Equal(t, len(tt.abm), abmLen)
		})
	}
}

func TestDeriveBitmaskDeterministic(t *testing.T) {
	a, _, err := DeriveBitmask([]byte{0x00, 0x00, 0x00, 0x2a}, 4, 64)
	require.NoError(t, err)
	b, _, err := DeriveBitmask([]byte{0x00, 0x00, 0x00, 0x2a}, 4, 64)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 17)
}

func TestDeriveBitmaskRejectsBadInput(t *testing.T) {
	_, _, err := DeriveBitmask([]byte{0x01}, 1, -1)
	require.ErrorIs(t, err, ErrNegativeWindow)

	_, _, err = DeriveBitmask([]byte{0x01, 0x02}, 1, 5)
	require.ErrorContains(t, err, "wider than arsn length")
}

func TestDeriveBitmaskBounds(t *testing.T) {
	tests := []struct {
		name    string
		arsnLen int
		arsnw   int
		err     string
	}{
		{name: "huge window", arsnLen: 1, arsnw: 1 << 62, err: "window must be <="},
		{name: "window just over", arsnLen: 1, arsnw: MaxWindow + 1, err: "window must be <="},
		{name: "huge counter", arsnLen: 1 << 62, arsnw: 5, err: "arsn length must be <="},
		{name: "counter just over", arsnLen: MaxARSNLen + 1, arsnw: 5, err: "arsn length must be <="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DeriveBitmask(nil, tt.arsnLen, tt.arsnw)
			require.ErrorContains(t, err, tt.err)
		})
	}

	abm, abmLen, err := DeriveBitmask(make([]byte, MaxARSNLen), MaxARSNLen, MaxWindow)
	require.NoError(t, err)
	require.Equal(t, 1024, abmLen)
	require.Len(t, abm, 1024)
}
