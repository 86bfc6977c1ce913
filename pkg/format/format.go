// Package format defines the on-disk layout of the burst catalog cache and
// the perfect-hash index used to look bursts up.
package format

import "encoding/binary"

const (
	// MagicNumber identifies burst catalog cache files.
	MagicNumber uint32 = 0x44533143 // "DS1C"
	// Version is the current format version.
	Version uint32 = 1
)

// Header is the uncompressed prefix of every cache file.
type Header struct {
	Magic   uint32
	Version uint32
	Count   uint64 // Number of reference rows
	Keys    uint32 // Number of distinct burst ids
}

// HeaderSize is the size of the header in bytes.
const HeaderSize = 4 + 4 + 8 + 4 // 20 bytes

// EncodeHeader writes a header to a byte slice.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.Count)
	binary.LittleEndian.PutUint32(buf[16:20], h.Keys)
	return buf
}

// DecodeHeader reads a header from a byte slice and checks magic and version.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrInvalidHeader
	}
	h := Header{
		Magic:   binary.LittleEndian.Uint32(buf[0:4]),
		Version: binary.LittleEndian.Uint32(buf[4:8]),
		Count:   binary.LittleEndian.Uint64(buf[8:16]),
		Keys:    binary.LittleEndian.Uint32(buf[16:20]),
	}
	if h.Magic != MagicNumber {
		return h, ErrMagicMismatch
	}
	if h.Version != Version {
		return h, ErrVersionMismatch
	}
	return h, nil
}
