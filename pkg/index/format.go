// Package index builds and reads the fixed-stride key index of a
// line-oriented data file.
//
// Index file layout, no header:
//
//	+--------------------+---------------------------+-----+
//	| key 1 (keyLength)  | offset 1 (int64, LE)      | ... |
//	+--------------------+---------------------------+-----+
//
// Entries are sorted ascending by the raw key bytes. The file length is a
// multiple of keyLength+8. Duplicate keys are kept; their relative order is
// not part of the format.
package index

import (
	"bufio"
	"fmt"
	"io"
	"slices"

	"lineidx/pkg/common"
)

// WriteEntries sorts a copy of entries and writes them in index layout.
// Every key must have the same length. Returns the bytes written.
func WriteEntries(w io.Writer, entries []common.Entry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	keyLength := len(entries[0].Key)
	for _, e := range entries {
		if len(e.Key) != keyLength {
			return 0, fmt.Errorf("%w: entry key %q is %d bytes, want %d", ErrKeyLength, e.Key, len(e.Key), keyLength)
		}
	}

	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, common.CompareEntries)

	return writeSorted(w, keyLength, func(fn func(common.Entry) error) error {
		for _, e := range sorted {
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeSorted serializes entries in the order ascend yields them.
func writeSorted(w io.Writer, keyLength int, ascend func(func(common.Entry) error) error) (int64, error) {
	bw := bufio.NewWriter(w)
	buf := make([]byte, common.Stride(keyLength))
	var n int64

	err := ascend(func(e common.Entry) error {
		common.EncodeEntry(buf, e)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
		n += int64(len(buf))
		return nil
	})
	if err != nil {
		return n, err
	}
	return n, bw.Flush()
}
