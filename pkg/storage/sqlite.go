package storage

import (
	"database/sql"
	"errors"
	"os"

	"lineidx/pkg/common"

	_ "modernc.org/sqlite"
)

const DefaultBatchSize = 1000

// SQLiteSpill stages entries in a throwaway sqlite database and hands them
// back in key order. BLOB columns compare with memcmp, which is the same
// byte-lexicographic order the index uses.
type SQLiteSpill struct {
	db        *sql.DB
	path      string
	batchSize int
	pending   []common.Entry
	count     int64
}

func OpenSQLiteSpill(dir, pattern string, batchSize int) (*SQLiteSpill, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	path := f.Name()
	f.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		PRAGMA journal_mode = OFF;
		PRAGMA synchronous = OFF;
		CREATE TABLE entries (
			key BLOB NOT NULL,
			pos INTEGER NOT NULL
		);`)
	if err != nil {
		db.Close()
		os.Remove(path)
		return nil, err
	}

	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SQLiteSpill{
		db:        db,
		path:      path,
		batchSize: batchSize,
		pending:   make([]common.Entry, 0, batchSize),
	}, nil
}

// Add buffers e and writes a batch once the buffer is full.
func (s *SQLiteSpill) Add(e common.Entry) error {
	s.pending = append(s.pending, e)
	if len(s.pending) >= s.batchSize {
		return s.Flush()
	}
	return nil
}

func (s *SQLiteSpill) Flush() error {
	if err := s.BatchWrite(s.pending); err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

func (s *SQLiteSpill) BatchWrite(entries []common.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO entries (key, pos) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.Key, e.Offset); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.count += int64(len(entries))
	return nil
}

// Count is the number of entries written so far, excluding the unflushed batch.
func (s *SQLiteSpill) Count() int64 {
	return s.count
}

// Ascend flushes and calls fn for every entry ordered by key, then offset.
func (s *SQLiteSpill) Ascend(fn func(common.Entry) error) error {
	if err := s.Flush(); err != nil {
		return err
	}

	rows, err := s.db.Query("SELECT key, pos FROM entries ORDER BY key ASC, pos ASC")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k []byte
		var pos int64
		if err := rows.Scan(&k, &pos); err != nil {
			return err
		}
		if err := fn(common.Entry{Key: k, Offset: pos}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Remove closes the database and deletes its file.
func (s *SQLiteSpill) Remove() error {
	cerr := s.db.Close()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return cerr
}
