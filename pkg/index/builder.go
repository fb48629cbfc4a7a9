package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"lineidx/pkg/common"
	"lineidx/pkg/config"
	"lineidx/pkg/extract"
	"lineidx/pkg/logging"
)

// BuildResult describes one completed build.
type BuildResult struct {
	ID       uuid.UUID
	Strategy string
	Records  int64 // records read from the data file
	Entries  int64 // entries written to the index
	Skipped  int64 // records shorter than the key length
	Bytes    int64 // index file size
	Elapsed  time.Duration
}

// Build indexes every record of dataPath that is at least keyLength bytes
// long and writes the sorted index to indexPath.
//
// The index is written to a temporary file next to indexPath and renamed
// into place, so on failure any existing index is left untouched.
func Build(ctx context.Context, dataPath, indexPath string, keyLength int, opts ...Option) (BuildResult, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if keyLength < 1 {
		return BuildResult{}, fmt.Errorf("%w: %d", ErrInvalidKeyLength, keyLength)
	}
	if !config.ValidStrategy(o.strategy) {
		return BuildResult{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, o.strategy)
	}

	dir := filepath.Dir(indexPath)
	base := filepath.Base(indexPath)
	if o.tempDir == "" {
		o.tempDir = dir
	}

	res := BuildResult{ID: uuid.New(), Strategy: o.strategy}
	logger := logging.Default(o.logger).With("component", "index-builder", "build", res.ID)
	start := time.Now()

	logger.Info("building index",
		"data", dataPath, "index", indexPath, "key_length", keyLength, "strategy", o.strategy)

	data, err := os.Open(dataPath)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrDataFileUnreadable, err)
	}
	defer data.Close()

	tmpFile, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return res, fmt.Errorf("%w: create temp index: %w", ErrIndexFileUnwritable, err)
	}
	tmpName := tmpFile.Name()
	published := false
	defer func() {
		if !published {
			tmpFile.Close()
			os.Remove(tmpName)
		}
	}()

	s, err := newSorter(o, keyLength, base)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrIndexFileUnwritable, err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("remove spill storage", "error", err)
		}
	}()

	x, err := extract.NewSize(data, keyLength, o.bufferSize)
	if err != nil {
		return res, err
	}
	var stageErr error
	err = x.Each(func(e common.Entry) error {
		if err := ctx.Err(); err != nil {
			stageErr = err
			return err
		}
		if err := s.Add(e); err != nil {
			stageErr = fmt.Errorf("%w: stage entry: %w", ErrIndexFileUnwritable, err)
			return stageErr
		}
		return nil
	})
	res.Records, res.Skipped = x.Records(), x.Skipped()
	if stageErr != nil {
		return res, stageErr
	}
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrDataFileUnreadable, err)
	}

	staged, stagedBytes, err := s.Staged()
	if err != nil {
		return res, fmt.Errorf("%w: stage entries: %w", ErrIndexFileUnwritable, err)
	}
	logger.Debug("entries staged",
		"entries", staged, "staged_size", humanize.Bytes(uint64(stagedBytes)))

	n, err := writeSorted(tmpFile, keyLength, s.Ascend)
	if err != nil {
		return res, fmt.Errorf("%w: write temp index: %w", ErrIndexFileUnwritable, err)
	}
	if err := tmpFile.Close(); err != nil {
		return res, fmt.Errorf("%w: close temp index: %w", ErrIndexFileUnwritable, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return res, fmt.Errorf("%w: chmod temp index: %w", ErrIndexFileUnwritable, err)
	}
	if err := os.Rename(tmpName, indexPath); err != nil {
		return res, fmt.Errorf("%w: rename index: %w", ErrIndexFileUnwritable, err)
	}
	published = true

	res.Bytes = n
	res.Entries = n / int64(common.Stride(keyLength))
	res.Elapsed = time.Since(start)

	logger.Info("index built",
		"records", res.Records,
		"entries", res.Entries,
		"skipped", res.Skipped,
		"size", humanize.Bytes(uint64(res.Bytes)),
		"elapsed", res.Elapsed)

	return res, nil
}
