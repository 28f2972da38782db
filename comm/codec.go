package comm

import (
	"encoding/binary"
	"math"
)

// encodeFloats renders vals as a little-endian byte buffer, 8 bytes per
// element, reusing buf's backing array when it is already the right size.
func encodeFloats(buf []byte, vals []float64) []byte {
	need := len(vals) * 8
	if cap(buf) < need {
		buf = make([]byte, need)
	}
	buf = buf[:need]
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeFloats is the inverse of encodeFloats; dst must have exactly
// len(buf)/8 elements available.
func decodeFloats(dst []float64, buf []byte) {
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
}
