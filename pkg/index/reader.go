package index

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"lineidx/pkg/common"
	"lineidx/pkg/logging"
	"lineidx/pkg/monitor"
)

// Reader resolves keys to records through a built index. It holds both the
// index and the data file open until Close.
type Reader struct {
	index     *os.File
	data      *os.File
	keyLength int
	stride    int64
	count     int64
	dataSize  int64
	line      *bufio.Reader
	stats     *monitor.SearchStats
	logger    *slog.Logger
}

// Open opens the index at indexPath over the data file at dataPath.
// keyLength must be the value the index was built with.
func Open(dataPath, indexPath string, keyLength int, opts ...Option) (*Reader, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if keyLength < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeyLength, keyLength)
	}

	idx, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexFileUnreadable, err)
	}
	idxInfo, err := idx.Stat()
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("%w: %w", ErrIndexFileUnreadable, err)
	}

	data, err := os.Open(dataPath)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("%w: %w", ErrDataFileUnreadable, err)
	}
	dataInfo, err := data.Stat()
	if err != nil {
		idx.Close()
		data.Close()
		return nil, fmt.Errorf("%w: %w", ErrDataFileUnreadable, err)
	}

	stride := int64(common.Stride(keyLength))
	r := &Reader{
		index:     idx,
		data:      data,
		keyLength: keyLength,
		stride:    stride,
		count:     idxInfo.Size() / stride,
		dataSize:  dataInfo.Size(),
		line:      bufio.NewReaderSize(nil, o.bufferSize),
		stats:     monitor.NewSearchStats(),
		logger:    logging.Default(o.logger).With("component", "index-reader", "index", indexPath),
	}
	if idxInfo.Size()%stride != 0 {
		r.logger.Warn("index size is not a multiple of the entry size",
			"size", idxInfo.Size(), "stride", stride)
	}
	return r, nil
}

// Len is the number of whole entries in the index.
func (r *Reader) Len() int64 {
	return r.count
}

func (r *Reader) Stats() *monitor.SearchStats {
	return r.stats
}

// Entry decodes the i-th entry of the index.
func (r *Reader) Entry(i int64) (common.Entry, error) {
	if i < 0 || i >= r.count {
		return common.Entry{}, fmt.Errorf("entry %d out of range [0, %d)", i, r.count)
	}
	buf := make([]byte, r.stride)
	if _, err := r.index.ReadAt(buf, i*r.stride); err != nil {
		return common.Entry{}, fmt.Errorf("read entry %d: %w", i, err)
	}
	return common.DecodeEntry(buf, r.keyLength), nil
}

// List calls fn with every indexed record in key order. The record excludes
// its newline and is only valid until fn returns. A truncated entry at the
// end of the index ends the listing.
func (r *Reader) List(fn func(record []byte) error) error {
	br := bufio.NewReader(io.NewSectionReader(r.index, 0, math.MaxInt64))
	buf := make([]byte, r.stride)
	for {
		if _, err := io.ReadFull(br, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("read index: %w", err)
		}
		rec, err := r.readRecord(common.DecodeOffset(buf[r.keyLength:]))
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// Lookup binary searches the index for key and returns the matching entry.
// With duplicate keys any one of them may be returned. A miss is not an error.
func (r *Reader) Lookup(key []byte) (common.Entry, bool, error) {
	if len(key) != r.keyLength {
		return common.Entry{}, false, fmt.Errorf("%w: got %d bytes, want %d", ErrKeyLength, len(key), r.keyLength)
	}
	r.stats.RecordSearch()

	cur := make([]byte, r.keyLength)
	low, high := int64(0), r.count
	// Any entry equal to key lies in [low, high).
	for low < high {
		mid := low + (high-low)/2
		r.stats.RecordProbe()

		if _, err := r.index.ReadAt(cur, mid*r.stride); err != nil {
			if isShortRead(err) {
				return common.Entry{}, false, nil
			}
			return common.Entry{}, false, fmt.Errorf("read key %d: %w", mid, err)
		}

		switch c := bytes.Compare(cur, key); {
		case c < 0:
			low = mid + 1
		case c > 0:
			high = mid
		default:
			var off [common.OffsetSize]byte
			if _, err := r.index.ReadAt(off[:], mid*r.stride+int64(r.keyLength)); err != nil {
				if isShortRead(err) {
					return common.Entry{}, false, nil
				}
				return common.Entry{}, false, fmt.Errorf("read offset %d: %w", mid, err)
			}
			r.stats.RecordHit()
			return common.Entry{Key: cur, Offset: common.DecodeOffset(off[:])}, true, nil
		}
	}
	return common.Entry{}, false, nil
}

// Search returns the record stored under key, or found=false if no record
// has that key.
func (r *Reader) Search(key []byte) (record []byte, found bool, err error) {
	e, found, err := r.Lookup(key)
	if err != nil || !found {
		return nil, false, err
	}
	rec, err := r.readRecord(e.Offset)
	if err != nil {
		return nil, false, err
	}
	return bytes.Clone(rec), true, nil
}

func (r *Reader) Close() error {
	r.logger.Debug("closing index", slog.Any("stats", r.stats.Snapshot()))
	ierr := r.index.Close()
	derr := r.data.Close()
	return errors.Join(ierr, derr)
}

// readRecord returns the line starting at offset without its newline. The
// slice is reused by the next call.
func (r *Reader) readRecord(offset int64) ([]byte, error) {
	if offset < 0 || offset >= r.dataSize {
		return nil, fmt.Errorf("%w: offset %d, data file is %d bytes", ErrOffsetOutOfRange, offset, r.dataSize)
	}
	r.line.Reset(io.NewSectionReader(r.data, offset, r.dataSize-offset))

	var rec []byte
	for {
		chunk, err := r.line.ReadSlice('\n')
		switch {
		case err == nil:
			chunk = chunk[:len(chunk)-1]
			if rec == nil {
				return chunk, nil
			}
			return append(rec, chunk...), nil
		case errors.Is(err, bufio.ErrBufferFull):
			rec = append(rec, chunk...)
		case err == io.EOF:
			return append(rec, chunk...), nil
		default:
			return nil, fmt.Errorf("read record at offset %d: %w", offset, err)
		}
	}
}

func isShortRead(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
