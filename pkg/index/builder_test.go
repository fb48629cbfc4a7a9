package index

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineidx/pkg/common"
	"lineidx/pkg/config"
	"lineidx/pkg/extract"
	"lineidx/pkg/logging"
)

var strategies = []string{config.StrategyMemory, config.StrategySpill, config.StrategySQLite}

func writeData(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// randomData returns newline-terminated lines over a small alphabet so that
// duplicate keys and short records both occur.
func randomData(seed int64, lines int) string {
	rng := rand.New(rand.NewSource(seed))
	var sb strings.Builder
	for i := 0; i < lines; i++ {
		n := rng.Intn(9)
		for j := 0; j < n; j++ {
			sb.WriteByte("abcAB\xff"[rng.Intn(6)])
		}
		fmt.Fprintf(&sb, "#%d\n", i)
	}
	return sb.String()
}

func decodeAll(t *testing.T, raw []byte, keyLength int) []common.Entry {
	t.Helper()
	stride := common.Stride(keyLength)
	require.Zero(t, len(raw)%stride, "index size %d not a multiple of %d", len(raw), stride)
	out := make([]common.Entry, 0, len(raw)/stride)
	for off := 0; off < len(raw); off += stride {
		out = append(out, common.DecodeEntry(raw[off:off+stride], keyLength))
	}
	return out
}

func TestBuildConcreteScenario(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			dataPath := writeData(t, dir, "CCCC-3\nAAAA-1\nBBBB-2\n")
			indexPath := filepath.Join(dir, "data.idx")

			res, err := Build(context.Background(), dataPath, indexPath, 4, WithStrategy(strategy))
			require.NoError(t, err)
			assert.Equal(t, int64(3), res.Entries)
			assert.Equal(t, int64(3), res.Records)
			assert.Equal(t, int64(36), res.Bytes)
			assert.Equal(t, strategy, res.Strategy)

			raw, err := os.ReadFile(indexPath)
			require.NoError(t, err)
			assert.Equal(t, []common.Entry{
				{Key: []byte("AAAA"), Offset: 7},
				{Key: []byte("BBBB"), Offset: 14},
				{Key: []byte("CCCC"), Offset: 0},
			}, decodeAll(t, raw, 4))
		})
	}
}

func TestBuildLogsStagedEntries(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			dataPath := writeData(t, dir, "CCCC-3\nAAAA-1\nxy\nBBBB-2\n")

			var logs bytes.Buffer
			logger, err := logging.New(&logs, slog.LevelDebug, "text")
			require.NoError(t, err)

			_, err = Build(context.Background(), dataPath, filepath.Join(dir, "data.idx"), 4,
				WithStrategy(strategy), WithBatchSize(2), WithLogger(logger))
			require.NoError(t, err)

			var staged string
			for _, line := range strings.Split(logs.String(), "\n") {
				if strings.Contains(line, `msg="entries staged"`) {
					staged = line
				}
			}
			require.NotEmpty(t, staged, logs.String())
			assert.Contains(t, staged, "entries=3")
			assert.Contains(t, staged, `staged_size="36 B"`)
		})
	}
}

func TestBuildSortedAndStrideAligned(t *testing.T) {
	t.Parallel()

	for _, keyLength := range []int{1, 3, 6} {
		dir := t.TempDir()
		dataPath := writeData(t, dir, randomData(int64(keyLength), 500))
		indexPath := filepath.Join(dir, "data.idx")

		_, err := Build(context.Background(), dataPath, indexPath, keyLength)
		require.NoError(t, err)

		raw, err := os.ReadFile(indexPath)
		require.NoError(t, err)
		entries := decodeAll(t, raw, keyLength)
		for i := 1; i < len(entries); i++ {
			assert.LessOrEqual(t, bytes.Compare(entries[i-1].Key, entries[i].Key), 0,
				"keys out of order at %d", i)
		}
	}
}

func TestBuildStrategiesByteIdentical(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := randomData(42, 2000)
	dataPath := writeData(t, dir, content)

	var outputs [][]byte
	for _, strategy := range strategies {
		indexPath := filepath.Join(dir, strategy+".idx")
		_, err := Build(context.Background(), dataPath, indexPath, 3,
			WithStrategy(strategy), WithBatchSize(64), WithDegree(4))
		require.NoError(t, err)

		raw, err := os.ReadFile(indexPath)
		require.NoError(t, err)
		outputs = append(outputs, raw)
	}

	// The slice writer is the reference rendition.
	x, err := extract.New(strings.NewReader(content), 3)
	require.NoError(t, err)
	var entries []common.Entry
	require.NoError(t, x.Each(func(e common.Entry) error {
		entries = append(entries, e)
		return nil
	}))
	var ref bytes.Buffer
	_, err = WriteEntries(&ref, entries)
	require.NoError(t, err)

	for i, out := range outputs {
		assert.True(t, bytes.Equal(ref.Bytes(), out), "strategy %s differs from reference", strategies[i])
	}
}

func TestBuildExcludesShortRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dataPath := writeData(t, dir, "ab\nabcd\n\nabc\nabcdef\n")
	indexPath := filepath.Join(dir, "data.idx")

	res, err := Build(context.Background(), dataPath, indexPath, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Records)
	assert.Equal(t, int64(2), res.Entries)
	assert.Equal(t, int64(3), res.Skipped)

	info, err := os.Stat(indexPath)
	require.NoError(t, err)
	assert.Equal(t, int64(2*12), info.Size())
}

func TestBuildEmptyData(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dataPath := writeData(t, dir, "")
	indexPath := filepath.Join(dir, "data.idx")

	res, err := Build(context.Background(), dataPath, indexPath, 4, WithStrategy(config.StrategySQLite))
	require.NoError(t, err)
	assert.Zero(t, res.Entries)

	info, err := os.Stat(indexPath)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestBuildOverwritesExistingIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dataPath := writeData(t, dir, "AAAA-1\n")
	indexPath := filepath.Join(dir, "data.idx")
	require.NoError(t, os.WriteFile(indexPath, bytes.Repeat([]byte("junk"), 100), 0o644))

	_, err := Build(context.Background(), dataPath, indexPath, 4)
	require.NoError(t, err)

	info, err := os.Stat(indexPath)
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.Size())
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestBuildMissingDataFileKeepsIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "data.idx")
	require.NoError(t, os.WriteFile(indexPath, []byte("previous"), 0o644))

	_, err := Build(context.Background(), filepath.Join(dir, "missing.txt"), indexPath, 4)
	require.ErrorIs(t, err, ErrDataFileUnreadable)
	assert.ErrorIs(t, err, os.ErrNotExist)

	raw, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(raw))
}

func TestBuildUnwritableDestination(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dataPath := writeData(t, dir, "AAAA-1\n")

	_, err := Build(context.Background(), dataPath, filepath.Join(dir, "no", "such", "dir", "data.idx"), 4)
	assert.ErrorIs(t, err, ErrIndexFileUnwritable)
}

func TestBuildDataPathIsDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Build(context.Background(), dir, filepath.Join(dir, "data.idx"), 4)
	assert.ErrorIs(t, err, ErrDataFileUnreadable)
	assertOnlyFiles(t, dir)
}

func TestBuildCancelledLeavesNoOutput(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			dataPath := writeData(t, dir, randomData(1, 100))
			indexPath := filepath.Join(dir, "data.idx")

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := Build(ctx, dataPath, indexPath, 2, WithStrategy(strategy))
			require.ErrorIs(t, err, context.Canceled)
			assertOnlyFiles(t, dir, "data.txt")
		})
	}
}

func TestBuildRemovesTemporaryFiles(t *testing.T) {
	t.Parallel()

	for _, strategy := range strategies {
		t.Run(strategy, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			dataPath := writeData(t, dir, randomData(3, 200))

			_, err := Build(context.Background(), dataPath, filepath.Join(dir, "data.idx"), 2, WithStrategy(strategy))
			require.NoError(t, err)
			assertOnlyFiles(t, dir, "data.idx", "data.txt")
		})
	}
}

func TestBuildSeparateTempDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	spillDir := t.TempDir()
	dataPath := writeData(t, dir, randomData(5, 50))

	_, err := Build(context.Background(), dataPath, filepath.Join(dir, "data.idx"), 2,
		WithStrategy(config.StrategySpill), WithTempDir(spillDir))
	require.NoError(t, err)
	assertOnlyFiles(t, spillDir)
	assertOnlyFiles(t, dir, "data.idx", "data.txt")
}

func TestBuildRejectsBadArguments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dataPath := writeData(t, dir, "AAAA\n")
	indexPath := filepath.Join(dir, "data.idx")

	_, err := Build(context.Background(), dataPath, indexPath, 0)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)

	_, err = Build(context.Background(), dataPath, indexPath, 4, WithStrategy("bubble"))
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = os.Stat(indexPath)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteEntriesRejectsMixedKeyLengths(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := WriteEntries(&buf, []common.Entry{
		{Key: []byte("abc"), Offset: 0},
		{Key: []byte("ab"), Offset: 4},
	})
	assert.ErrorIs(t, err, ErrKeyLength)
	assert.Zero(t, buf.Len())
}

func assertOnlyFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	var got []string
	for _, de := range des {
		got = append(got, de.Name())
	}
	if len(names) == 0 {
		assert.Empty(t, got)
		return
	}
	assert.ElementsMatch(t, names, got)
}
