package index

import (
	"log/slog"

	"lineidx/pkg/config"
	"lineidx/pkg/extract"
	"lineidx/pkg/memory"
	"lineidx/pkg/storage"
)

type options struct {
	strategy   string
	tempDir    string
	batchSize  int
	degree     int
	bufferSize int
	logger     *slog.Logger
}

func defaultOptions() options {
	return options{
		strategy:   config.StrategyMemory,
		batchSize:  storage.DefaultBatchSize,
		degree:     memory.DefaultDegree,
		bufferSize: extract.DefaultBufferSize,
	}
}

// Option configures Build and Open. Build-only options are ignored by Open.
type Option func(*options)

// WithStrategy selects how Build orders entries: config.StrategyMemory,
// config.StrategySpill or config.StrategySQLite. All produce identical files.
func WithStrategy(s string) Option {
	return func(o *options) { o.strategy = s }
}

// WithTempDir sets where spill files go. The default is the index's directory.
func WithTempDir(dir string) Option {
	return func(o *options) { o.tempDir = dir }
}

func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

func WithDegree(n int) Option {
	return func(o *options) {
		if n >= 2 {
			o.degree = n
		}
	}
}

func WithBufferSize(n int) Option {
	return func(o *options) {
		if n >= 16 {
			o.bufferSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// FromConfig maps the build section of cfg onto options.
func FromConfig(cfg config.BuildConfig) []Option {
	return []Option{
		WithStrategy(cfg.Strategy),
		WithTempDir(cfg.TempDir),
		WithBatchSize(cfg.SpillBatchSize),
		WithDegree(cfg.BTreeDegree),
		WithBufferSize(cfg.ReadBufferSize),
	}
}
