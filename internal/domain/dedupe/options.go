// Package dedupe tracks seen event ids so duplicate submissions are
// acknowledged instead of double-applied.
package dedupe

// Option applies a configuration option to the inMemoryDeduper.
type Option func(*inMemoryDeduper)

// WithMaxSize bounds the number of ids kept in memory.
// maxSize > 0: bounded mode, oldest ids evicted first.
// maxSize <= 0: unbounded mode (no eviction).
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}
