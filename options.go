package veloxdb

import (
	"log/slog"

	"github.com/veloxdb/veloxdb/internal/fs"
)

// DefaultSeed seeds k-means initialization unless WithSeed says otherwise.
const DefaultSeed uint64 = 42

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	simd             bool
	seed             uint64
	trainingWorkers  int
	fileSystem       fs.FileSystem
}

// Option configures a VectorIndex.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &veloxdb.BasicMetricsCollector{}
//	db := veloxdb.New(veloxdb.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := veloxdb.NewJSONLogger(slog.LevelInfo)
//	db := veloxdb.New(veloxdb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithSIMD sets the initial state of the vectorized distance path.
// Enabled by default; SetSIMD changes it later.
func WithSIMD(enabled bool) Option {
	return func(o *options) {
		o.simd = enabled
	}
}

// WithSeed sets the seed for centroid initialization. Two builds over the
// same corpus with the same seed produce the same index.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithTrainingWorkers bounds the goroutines used by the k-means assignment
// step. Values <= 0 mean GOMAXPROCS.
func WithTrainingWorkers(n int) Option {
	return func(o *options) {
		o.trainingWorkers = n
	}
}

// WithFileSystem routes every file write (and index reads) through fsys.
// Vector files are always memory-mapped from the local file system.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fileSystem = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		simd:             true,
		seed:             DefaultSeed,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
