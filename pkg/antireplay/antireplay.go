// Package antireplay derives the anti-replay bitmask (ABM) of an SA from its
// anti-replay sequence number (ARSN) and window size (ARSNW).
//
// The mask covers the 2W+1 sequence numbers ARSN-W .. ARSN+W, oldest first,
// packed most significant bit first and zero padded to a whole byte. A bit is
// set when that sequence number is still acceptable: strictly after the last
// accepted ARSN and representable in the ARSN field width. Sequence numbers at
// or before ARSN are consumed and stay clear.
package antireplay

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// MaxARSNLen is the widest ARSN field in bytes.
	MaxARSNLen = 20
	// MaxWindow keeps the mask within 1024 bytes.
	MaxWindow = 4095
)

var (
	ErrNegativeWindow = errors.New("anti-replay window must be >= 0")
	ErrWindowTooLarge = fmt.Errorf("anti-replay window must be <= %d", MaxWindow)
)

// DeriveBitmask returns the bitmask for arsn within a window of arsnw and its
// length in bytes. arsnLen is the ARSN field width in bytes; a width of zero
// leaves the sequence space unbounded.
func DeriveBitmask(arsn []byte, arsnLen, arsnw int) ([]byte, int, error) {
	if arsnw < 0 {
		return nil, 0, ErrNegativeWindow
	}
	if arsnw > MaxWindow {
		return nil, 0, ErrWindowTooLarge
	}
	if arsnLen < 0 {
		return nil, 0, fmt.Errorf("arsn length must be >= 0, got %d", arsnLen)
	}
	if arsnLen > MaxARSNLen {
		return nil, 0, fmt.Errorf("arsn length must be <= %d, got %d", MaxARSNLen, arsnLen)
	}
	if arsnLen > 0 && len(arsn) > arsnLen {
		return nil, 0, fmt.Errorf("arsn is %d bytes, wider than arsn length %d", len(arsn), arsnLen)
	}

	positions := 2*arsnw + 1
	abmLen := (positions + 7) / 8 //nolint:mnd
	abm := make([]byte, abmLen)

	current := new(big.Int).SetBytes(arsn)
	var ceiling *big.Int
	if arsnLen > 0 {
		ceiling = new(big.Int).Lsh(big.NewInt(1), uint(arsnLen)*8) //nolint:gosec,mnd
		ceiling.Sub(ceiling, big.NewInt(1))
	}

	seq := new(big.Int)
	for i := arsnw + 1; i < positions; i++ {
		seq.Add(current, big.NewInt(int64(i-arsnw)))
		if ceiling != nil && seq.Cmp(ceiling) > 0 {
			break
		}
		abm[i/8] |= 0x80 >> (i % 8) //nolint:mnd
	}

	return abm, abmLen, nil
}
