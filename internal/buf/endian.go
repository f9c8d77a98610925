// Package buf contains bounds-checked helpers for reading and writing the
// fixed-width little-endian fields of block headers stored inside a region.
package buf

import "encoding/binary"

// U16LE reads a little-endian uint16 at off. Returns 0 when b is too short.
func U16LE(b []byte, off int) uint16 {
	if !Has(b, off, 2) {
		return 0
	}
	return binary.LittleEndian.Uint16(b[off:])
}

// U32LE reads a little-endian uint32 at off. Returns 0 when b is too short.
func U32LE(b []byte, off int) uint32 {
	if !Has(b, off, 4) {
		return 0
	}
	return binary.LittleEndian.Uint32(b[off:])
}

// PutU16LE writes v at off. It reports false and writes nothing when the
// field does not fit.
func PutU16LE(b []byte, off int, v uint16) bool {
	if !Has(b, off, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(b[off:], v)
	return true
}

// PutU32LE writes v at off. It reports false and writes nothing when the
// field does not fit.
func PutU32LE(b []byte, off int, v uint32) bool {
	if !Has(b, off, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(b[off:], v)
	return true
}
