// Package fileio implements a random-access, resizable file with
// byte-range insert and remove.
//
// Inserts and removes shift the file's tail in place, one buffer-sized
// chunk at a time, so edits never hold more than BufferSize bytes of the
// tail in memory. A File is not safe for concurrent use.
package fileio

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/types"
)

// Mode is the access mode of a File.
type Mode = types.Mode

// File is a byte-addressable document with a current position.
type File struct {
	name    string
	mode    Mode
	pos     int64
	length  int64
	bufSize int
	store   Storage
	open    opener
	logger  *slog.Logger
}

// Open opens the file at path in the given mode.
func Open(ctx context.Context, path string, mode Mode, opts ...Option) (*File, error) {
	return newFile(ctx, path, osOpener(path), mode, opts)
}

// NewMemory returns a File over an in-memory copy of data. The contents
// survive Close, so the file can be reopened with SetMode. It panics on an
// unknown mode.
func NewMemory(name string, data []byte, mode Mode, opts ...Option) *File {
	mem := &memStorage{data: append([]byte(nil), data...)}
	f, err := newFile(context.Background(), name, func(Mode) (Storage, error) { return mem, nil }, mode, opts)
	if err != nil {
		panic(err)
	}
	return f
}

func newFile(ctx context.Context, name string, open opener, mode Mode, opts []Option) (*File, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	f := &File{
		name:    name,
		mode:    types.Closed,
		bufSize: o.bufferSize,
		open:    open,
		logger:  o.logger.With("file", name),
	}
	if err := f.SetMode(ctx, mode); err != nil {
		return nil, err
	}
	return f, nil
}

// Name returns the name the file was opened with.
func (f *File) Name() string { return f.name }

// Mode returns the current access mode.
func (f *File) Mode() Mode { return f.mode }

// Position returns the current position.
func (f *File) Position() int64 { return f.pos }

// Length returns the current length in bytes.
func (f *File) Length() int64 { return f.length }

// BufferSize returns the chunk size used for tail shifts.
func (f *File) BufferSize() int { return f.bufSize }

// SetMode switches the access mode. Leaving ReadWrite syncs the storage
// first. Closed is not terminal: a closed file may be reopened by
// switching back to Read or ReadWrite. If the storage cannot be opened in
// the new mode, the file stays open in its previous mode.
func (f *File) SetMode(ctx context.Context, mode Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mode == f.mode {
		return nil
	}
	if mode != types.Read && mode != types.ReadWrite && mode != types.Closed {
		return fmt.Errorf("%s: unknown mode %d", f.name, int(mode))
	}

	if f.store != nil && f.mode == types.ReadWrite {
		if err := f.store.Sync(); err != nil {
			return fmt.Errorf("%s: sync: %w", f.name, err)
		}
	}

	var next Storage
	var size int64
	if mode != types.Closed {
		s, err := f.open(mode)
		if err != nil {
			return err
		}
		if size, err = s.Size(); err != nil {
			_ = s.Close() //nolint:errcheck // Already failing
			return fmt.Errorf("%s: stat: %w", f.name, err)
		}
		next = s
	}

	if f.store != nil && f.store != next {
		if err := f.store.Close(); err != nil {
			if next != nil {
				_ = next.Close() //nolint:errcheck // Already failing
			}
			return fmt.Errorf("%s: close: %w", f.name, err)
		}
	}

	from := f.mode
	f.store, f.mode = next, mode
	if next != nil {
		f.length = size
		f.pos = min(f.pos, size)
	}

	f.logger.Debug("mode changed", "from", from, "to", mode, "length", f.length)
	return nil
}

// Close syncs and closes the file. Closing a closed file is a no-op.
func (f *File) Close() error {
	return f.SetMode(context.Background(), types.Closed)
}

func (f *File) check(ctx context.Context, op string, write bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.mode == types.Closed || (write && f.mode != types.ReadWrite) {
		return &types.AccessModeError{Path: f.name, Op: op, Mode: f.mode}
	}
	return nil
}

func (f *File) outOfBounds(what string, off, n int64) error {
	return &types.OutOfBoundsError{Path: f.name, What: what, Offset: off, Length: n, Size: f.length}
}

// Seek sets the position. The result must lie within [0, Length].
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.check(context.Background(), "seek", false); err != nil {
		return f.pos, err
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.pos + offset
	case io.SeekEnd:
		target = f.length + offset
	default:
		return f.pos, fmt.Errorf("%s: invalid whence %d", f.name, whence)
	}
	if target < 0 || target > f.length {
		return f.pos, f.outOfBounds("seeking", target, 0)
	}
	f.pos = target
	return target, nil
}

// ReadBlock reads n bytes at the current position and advances it.
func (f *File) ReadBlock(ctx context.Context, n int) ([]byte, error) {
	b, err := f.ReadAt(ctx, f.pos, n)
	if err != nil {
		return nil, err
	}
	f.pos += int64(n)
	return b, nil
}

// ReadAt reads n bytes at off without moving the position.
func (f *File) ReadAt(ctx context.Context, off int64, n int) ([]byte, error) {
	if err := f.check(ctx, "read", false); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, f.outOfBounds("reading block", off, int64(n))
	}
	b := make([]byte, n)
	if err := binary.NewSafeReader(f.store, f.length, f.name).ReadAt(b, off, "block"); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteBlock overwrites forward from the current position, extending the
// file when the write runs past the end, and advances the position.
func (f *File) WriteBlock(ctx context.Context, data []byte) error {
	if err := f.check(ctx, "write", true); err != nil {
		return err
	}
	if _, err := f.store.WriteAt(data, f.pos); err != nil {
		return fmt.Errorf("%s: write at %d: %w", f.name, f.pos, err)
	}
	f.pos += int64(len(data))
	f.length = max(f.length, f.pos)
	return nil
}

// Insert removes replace bytes at start, then inserts size bytes there.
// The inserted bytes come from data when it is non-nil, in which case
// len(data) must equal size; otherwise the region is reserved and its
// content is unspecified. Every byte at or after start+replace moves by
// size-replace.
//
// A position at or after start+replace moves with its bytes; a position
// inside the replaced range moves to start.
func (f *File) Insert(ctx context.Context, data []byte, size, start, replace int64) error {
	if err := f.check(ctx, "insert", true); err != nil {
		return err
	}
	if start < 0 || start > f.length {
		return f.outOfBounds("inserting", start, replace)
	}
	if replace < 0 || replace > f.length-start {
		return f.outOfBounds("replacing", start, replace)
	}
	if size < 0 {
		return f.outOfBounds("inserting", start, size)
	}
	if data != nil && int64(len(data)) != size {
		return fmt.Errorf("%s: insert of %d bytes given %d bytes of data", f.name, size, len(data))
	}

	tail := start + replace
	delta := size - replace
	if delta != 0 {
		if err := f.move(ctx, tail, tail+delta, f.length-tail); err != nil {
			return err
		}
		if delta < 0 {
			if err := f.store.Truncate(f.length + delta); err != nil {
				return fmt.Errorf("%s: truncate: %w", f.name, err)
			}
		}
		f.logger.Debug("shifted tail", "from", tail, "delta", delta, "bytes", f.length-tail)
		f.length += delta
	}

	if len(data) > 0 {
		if _, err := f.store.WriteAt(data, start); err != nil {
			return fmt.Errorf("%s: write at %d: %w", f.name, start, err)
		}
	}

	switch {
	case f.pos >= tail:
		f.pos += delta
	case f.pos > start:
		f.pos = start
	}
	return nil
}

// RemoveBlock deletes length bytes at start and shifts the rest left.
func (f *File) RemoveBlock(ctx context.Context, start, length int64) error {
	if err := f.check(ctx, "remove", true); err != nil {
		return err
	}
	return f.Insert(ctx, nil, 0, start, length)
}

// Truncate sets the length, zero-extending when growing.
func (f *File) Truncate(ctx context.Context, length int64) error {
	if err := f.check(ctx, "truncate", true); err != nil {
		return err
	}
	if length < 0 {
		return f.outOfBounds("truncating", length, 0)
	}
	if err := f.store.Truncate(length); err != nil {
		return fmt.Errorf("%s: truncate: %w", f.name, err)
	}
	f.length = length
	f.pos = min(f.pos, length)
	return nil
}

// move copies n bytes from src to dst in BufferSize chunks. Overlapping
// ranges are handled by copying back to front when moving right.
func (f *File) move(ctx context.Context, src, dst, n int64) error {
	if n == 0 || src == dst {
		return nil
	}
	sr := binary.NewSafeReader(f.store, f.length, f.name)
	buf := make([]byte, min(int64(f.bufSize), n))

	for done := int64(0); done < n; {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := min(int64(len(buf)), n-done)
		off := done
		if dst > src {
			off = n - done - chunk
		}
		b := buf[:chunk]
		if err := sr.ReadAt(b, src+off, "shifting tail"); err != nil {
			return err
		}
		if _, err := f.store.WriteAt(b, dst+off); err != nil {
			return fmt.Errorf("%s: write at %d: %w", f.name, dst+off, err)
		}
		done += chunk
	}
	return nil
}
