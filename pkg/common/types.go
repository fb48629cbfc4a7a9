package common

import (
	"bytes"
	"fmt"
)

// OffsetSize 是索引条目中偏移量字段的宽度 (int64, little-endian)
const OffsetSize = 8

// Entry 是索引中的基本单元: 记录前缀 key 与该记录在数据文件中的字节偏移
type Entry struct {
	Key    []byte
	Offset int64
}

// Stride returns the on-disk width of one entry for the given key length.
func Stride(keyLength int) int {
	return keyLength + OffsetSize
}

// CompareEntries orders entries by key bytes, then by offset.
// The offset tie-break only makes builds reproducible; the index format
// makes no promise about the order of duplicate keys.
func CompareEntries(a, b Entry) int {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	switch {
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	}
	return 0
}

// String 方便调试打印
func (e *Entry) String() string {
	return fmt.Sprintf("Entry{Key: %q, Offset: %d}", e.Key, e.Offset)
}
