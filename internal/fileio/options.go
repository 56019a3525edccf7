package fileio

import "log/slog"

// DefaultBufferSize bounds the memory used when shifting a file's tail.
const DefaultBufferSize = 64 * 1024

// Option configures a File.
type Option func(*options)

type options struct {
	bufferSize int
	logger     *slog.Logger
}

func defaultOptions() *options {
	return &options{
		bufferSize: DefaultBufferSize,
		logger:     slog.New(slog.DiscardHandler),
	}
}

// WithBufferSize sets the chunk size for tail shifts. Values below 1 are
// ignored.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithLogger sets the logger for mode changes and shifts.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
