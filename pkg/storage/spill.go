package storage

import (
	"bufio"
	"errors"
	"io"
	"os"

	"lineidx/pkg/common"
)

// SpillFile is an unsorted, append-only run of index entries in the same
// fixed-stride layout as the final index. It lives in a temporary file that
// Remove deletes.
type SpillFile struct {
	file      *os.File
	buf       *bufio.Writer
	keyLength int
	scratch   []byte
	count     int64
}

func CreateSpill(dir, pattern string, keyLength int) (*SpillFile, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return &SpillFile{
		file:      f,
		buf:       bufio.NewWriter(f),
		keyLength: keyLength,
		scratch:   make([]byte, common.Stride(keyLength)),
	}, nil
}

func (s *SpillFile) Append(e common.Entry) error {
	if len(e.Key) != s.keyLength {
		return errors.New("spill: key length mismatch")
	}
	common.EncodeEntry(s.scratch, e)
	if _, err := s.buf.Write(s.scratch); err != nil {
		return err
	}
	s.count++
	return nil
}

func (s *SpillFile) Count() int64 {
	return s.count
}

func (s *SpillFile) Name() string {
	return s.file.Name()
}

// Size flushes pending writes and reports the file size.
func (s *SpillFile) Size() (int64, error) {
	if err := s.buf.Flush(); err != nil {
		return 0, err
	}
	st, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// NewIterator flushes pending writes and opens an independent reader
// positioned at the first entry.
func (s *SpillFile) NewIterator() (*SpillIterator, error) {
	if err := s.buf.Flush(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Name())
	if err != nil {
		return nil, err
	}
	return &SpillIterator{
		file:      f,
		reader:    bufio.NewReader(f),
		keyLength: s.keyLength,
		scratch:   make([]byte, common.Stride(s.keyLength)),
	}, nil
}

func (s *SpillFile) Close() error {
	ferr := s.buf.Flush()
	if err := s.file.Close(); err != nil {
		return err
	}
	return ferr
}

// Remove closes the file if still open and deletes it.
func (s *SpillFile) Remove() error {
	s.file.Close()
	if err := os.Remove(s.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type SpillIterator struct {
	reader    *bufio.Reader
	file      *os.File
	keyLength int
	scratch   []byte
}

// Next returns the next entry or io.EOF. A trailing partial entry is
// treated as the end of data.
func (it *SpillIterator) Next() (common.Entry, error) {
	if _, err := io.ReadFull(it.reader, it.scratch); err != nil {
		if err == io.ErrUnexpectedEOF {
			return common.Entry{}, io.EOF
		}
		return common.Entry{}, err
	}
	return common.DecodeEntry(it.scratch, it.keyLength), nil
}

func (it *SpillIterator) Close() {
	it.file.Close()
}
