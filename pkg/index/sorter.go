package index

import (
	"fmt"
	"io"

	"lineidx/pkg/common"
	"lineidx/pkg/config"
	"lineidx/pkg/memory"
	"lineidx/pkg/storage"
)

// sorter collects entries in any order and yields them sorted by
// common.CompareEntries. Staged reports what has been added so far and the
// bytes it occupies in staging storage. Close releases any temporary storage.
type sorter interface {
	Add(e common.Entry) error
	Ascend(fn func(common.Entry) error) error
	Staged() (entries, bytes int64, err error)
	Close() error
}

func newSorter(o options, keyLength int, base string) (sorter, error) {
	switch o.strategy {
	case config.StrategyMemory:
		return &memorySorter{table: memory.NewTable(o.degree)}, nil
	case config.StrategySpill:
		spill, err := storage.CreateSpill(o.tempDir, base+".spill.*", keyLength)
		if err != nil {
			return nil, fmt.Errorf("create spill file: %w", err)
		}
		return &spillSorter{spill: spill, degree: o.degree}, nil
	case config.StrategySQLite:
		db, err := storage.OpenSQLiteSpill(o.tempDir, base+".sqlite.*", o.batchSize)
		if err != nil {
			return nil, fmt.Errorf("open sqlite spill: %w", err)
		}
		return &sqliteSorter{db: db, stride: int64(common.Stride(keyLength))}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, o.strategy)
}

type memorySorter struct {
	table *memory.Table
}

func (s *memorySorter) Add(e common.Entry) error {
	s.table.Put(e)
	return nil
}

func (s *memorySorter) Ascend(fn func(common.Entry) error) error {
	return ascendTable(s.table, fn)
}

func (s *memorySorter) Staged() (int64, int64, error) {
	return int64(s.table.Count()), int64(s.table.Size()), nil
}

func (s *memorySorter) Close() error { return nil }

// spillSorter writes entries unsorted to a temporary file, then reloads the
// whole file into memory and sorts it there.
type spillSorter struct {
	spill  *storage.SpillFile
	degree int
}

func (s *spillSorter) Add(e common.Entry) error {
	return s.spill.Append(e)
}

func (s *spillSorter) Ascend(fn func(common.Entry) error) error {
	it, err := s.spill.NewIterator()
	if err != nil {
		return fmt.Errorf("reopen spill file: %w", err)
	}
	defer it.Close()

	table := memory.NewTable(s.degree)
	for {
		e, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read spill file: %w", err)
		}
		table.Put(e)
	}
	return ascendTable(table, fn)
}

func (s *spillSorter) Staged() (int64, int64, error) {
	size, err := s.spill.Size()
	return s.spill.Count(), size, err
}

func (s *spillSorter) Close() error {
	return s.spill.Remove()
}

type sqliteSorter struct {
	db     *storage.SQLiteSpill
	stride int64
}

func (s *sqliteSorter) Add(e common.Entry) error {
	return s.db.Add(e)
}

func (s *sqliteSorter) Ascend(fn func(common.Entry) error) error {
	return s.db.Ascend(fn)
}

// Staged flushes the pending batch so the count covers every added entry.
func (s *sqliteSorter) Staged() (int64, int64, error) {
	if err := s.db.Flush(); err != nil {
		return 0, 0, err
	}
	n := s.db.Count()
	return n, n * s.stride, nil
}

func (s *sqliteSorter) Close() error {
	return s.db.Remove()
}

func ascendTable(t *memory.Table, fn func(common.Entry) error) error {
	var ferr error
	t.Iterator(func(e common.Entry) bool {
		ferr = fn(e)
		return ferr == nil
	})
	return ferr
}
