package dedupe

// Option configures the in-memory Deduper.
type Option func(*ringDeduper)

// WithMaxSize bounds how many keys are remembered. maxSize <= 0 keeps every key.
func WithMaxSize(maxSize int) Option {
	return func(d *ringDeduper) {
		d.maxSize = maxSize
	}
}
