package atomtree

import (
	"log/slog"

	"github.com/simonhull/atomtree/internal/box"
	"github.com/simonhull/atomtree/internal/fileio"
)

// Option configures behavior when opening files.
//
// Options use the functional options pattern for clean, extensible APIs.
//
// Example:
//
//	doc, err := atomtree.Open(ctx, "book.m4b",
//	    atomtree.WithStrictParsing(),
//	    atomtree.WithBufferSize(1<<20),
//	)
type Option func(*openOptions)

// openOptions holds configuration for opening files.
type openOptions struct {
	strictParsing  bool // Fail on any warning
	ignoreWarnings bool // Suppress all warnings
	bufferSize     int
	roundTrip      RoundTripPolicy
	maxPayloadSize int64
	logger         *slog.Logger
	registry       *box.Registry
	skipFixup      bool
}

// defaultOptions returns the default configuration.
func defaultOptions() *openOptions {
	return &openOptions{
		bufferSize: fileio.DefaultBufferSize,
		roundTrip:  RoundTripReport,
		logger:     slog.New(slog.DiscardHandler),
	}
}

func (o *openOptions) fileOptions() []fileio.Option {
	return []fileio.Option{
		fileio.WithBufferSize(o.bufferSize),
		fileio.WithLogger(o.logger),
	}
}

func (o *openOptions) treeOptions() box.Options {
	return box.Options{
		Registry:             o.registry,
		RoundTrip:            o.roundTrip,
		Strict:               o.strictParsing,
		MaxPayloadSize:       o.maxPayloadSize,
		Logger:               o.logger,
		SkipChunkOffsetFixup: o.skipFixup,
	}
}

// WithStrictParsing treats any warning as a fatal error.
//
// By default, a malformed box nested inside a container turns that
// container into opaque bytes and the parse continues with a warning.
// With strict parsing enabled, the malformed box fails Open, and so does
// any warning left after parsing.
func WithStrictParsing() Option {
	return func(o *openOptions) {
		o.strictParsing = true
	}
}

// WithIgnoreWarnings suppresses all warnings.
//
// Document.Warnings will always be empty.
func WithIgnoreWarnings() Option {
	return func(o *openOptions) {
		o.ignoreWarnings = true
	}
}

// WithBufferSize sets the chunk size used when bytes are shifted to make
// room for a grown box, and when opaque payloads are copied.
//
// Default is 64 KiB. Values below one are ignored.
func WithBufferSize(n int) Option {
	return func(o *openOptions) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithRoundTripPolicy sets what happens to a payload that does not
// re-encode to the bytes it was decoded from.
//
// Default is RoundTripReport.
func WithRoundTripPolicy(p RoundTripPolicy) Option {
	return func(o *openOptions) {
		o.roundTrip = p
	}
}

// WithMaxPayloadSize bounds the payloads decoded in memory. Larger boxes
// stay opaque and are streamed.
//
// Default is 16 MiB.
func WithMaxPayloadSize(bytes int64) Option {
	return func(o *openOptions) {
		o.maxPayloadSize = bytes
	}
}

// WithLogger sends debug records about parsing, saving and tail shifts to
// l. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *openOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry replaces the default box registry.
func WithRegistry(r *box.Registry) Option {
	return func(o *openOptions) {
		o.registry = r
	}
}

// WithoutChunkOffsetFixup leaves stco and co64 entries untouched when a
// save moves bytes. Only useful for files whose media data precedes every
// edited box, or for inspecting broken files.
func WithoutChunkOffsetFixup() Option {
	return func(o *openOptions) {
		o.skipFixup = true
	}
}
