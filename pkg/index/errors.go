package index

import (
	"errors"

	"lineidx/pkg/extract"
)

var (
	ErrDataFileUnreadable  = errors.New("data file unreadable")
	ErrIndexFileUnwritable = errors.New("index file unwritable")
	ErrIndexFileUnreadable = errors.New("index file unreadable")
	ErrKeyLength           = errors.New("search key length does not match index key length")
	ErrOffsetOutOfRange    = errors.New("record offset outside data file")
	ErrUnknownStrategy     = errors.New("unknown build strategy")

	ErrInvalidKeyLength = extract.ErrInvalidKeyLength
)
