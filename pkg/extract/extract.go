// Package extract streams newline-delimited records from a data source and
// derives the fixed-length key and byte offset of each one.
package extract

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"lineidx/pkg/common"
)

const DefaultBufferSize = 64 * 1024

var ErrInvalidKeyLength = errors.New("key length must be at least 1")

// Extractor yields one Entry per record whose length (excluding the
// newline) is at least keyLength. Shorter records are skipped.
type Extractor struct {
	r         *bufio.Reader
	keyLength int
	offset    int64
	prefix    []byte
	records   int64
	skipped   int64
}

func New(r io.Reader, keyLength int) (*Extractor, error) {
	return NewSize(r, keyLength, DefaultBufferSize)
}

// NewSize is New with an explicit read buffer size. Records longer than the
// buffer are still handled; the size only affects how often the reader refills.
func NewSize(r io.Reader, keyLength, size int) (*Extractor, error) {
	if keyLength < 1 {
		return nil, ErrInvalidKeyLength
	}
	return &Extractor{
		r:         bufio.NewReaderSize(r, size),
		keyLength: keyLength,
		prefix:    make([]byte, 0, keyLength),
	}, nil
}

// Next returns the next keyed entry, or io.EOF once the source is exhausted.
func (x *Extractor) Next() (common.Entry, error) {
	for {
		start := x.offset
		if err := x.readRecord(); err != nil {
			if err == io.EOF {
				return common.Entry{}, io.EOF
			}
			return common.Entry{}, fmt.Errorf("read record at offset %d: %w", start, err)
		}
		x.records++
		if len(x.prefix) < x.keyLength {
			x.skipped++
			continue
		}
		return common.Entry{Key: bytes.Clone(x.prefix), Offset: start}, nil
	}
}

// Each calls fn for every keyed entry in source order and stops at the first error.
func (x *Extractor) Each(fn func(common.Entry) error) error {
	for {
		e, err := x.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// Records is the number of records read so far, keyed or not.
func (x *Extractor) Records() int64 { return x.records }

// Skipped is the number of records too short to carry a key.
func (x *Extractor) Skipped() int64 { return x.skipped }

// readRecord consumes one record and keeps at most keyLength of its leading
// bytes in x.prefix. A final record without a trailing newline still counts.
func (x *Extractor) readRecord() error {
	x.prefix = x.prefix[:0]
	var n int64
	for {
		chunk, err := x.r.ReadSlice('\n')
		n += int64(len(chunk))

		content := chunk
		if err == nil {
			content = chunk[:len(chunk)-1]
		}
		if need := x.keyLength - len(x.prefix); need > 0 {
			x.prefix = append(x.prefix, content[:min(need, len(content))]...)
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		x.offset += n
		if err == io.EOF && n > 0 {
			return nil
		}
		return err
	}
}
