package common

import "encoding/binary"

// On-disk entry layout (Stride(keyLength) bytes, no header):
//
//	[key keyLength bytes][offset int64 little-endian]
//
// The byte order is fixed so files move between hosts unchanged.

// EncodeEntry writes e into dst, which must hold Stride(len(e.Key)) bytes.
// Returns the number of bytes written.
func EncodeEntry(dst []byte, e Entry) int {
	n := copy(dst, e.Key)
	binary.LittleEndian.PutUint64(dst[n:n+OffsetSize], uint64(e.Offset))
	return n + OffsetSize
}

// DecodeEntry reads one entry from src. The key is copied out of src.
func DecodeEntry(src []byte, keyLength int) Entry {
	key := make([]byte, keyLength)
	copy(key, src[:keyLength])
	return Entry{Key: key, Offset: DecodeOffset(src[keyLength:])}
}

func DecodeOffset(src []byte) int64 {
	return int64(binary.LittleEndian.Uint64(src[:OffsetSize]))
}
