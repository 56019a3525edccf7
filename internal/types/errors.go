package types

import (
	"errors"
	"fmt"
)

// ErrClosed is matched (via errors.Is) by an AccessModeError raised
// because the file is closed.
var ErrClosed = errors.New("file is closed")

// OutOfBoundsError is returned when a read, edit or slice falls outside
// the valid range of a file or buffer.
type OutOfBoundsError struct {
	Path   string
	What   string
	Offset int64
	Length int64
	Size   int64
}

func (e *OutOfBoundsError) Error() string {
	if e.Offset < 0 || e.Offset > e.Size {
		return fmt.Sprintf("%s: offset %d out of bounds (size: %d) while %s",
			e.Path, e.Offset, e.Size, e.What)
	}
	return fmt.Sprintf("%s: range of %d bytes at offset %d would exceed size %d while %s",
		e.Path, e.Length, e.Offset, e.Size, e.What)
}

// AccessModeError is returned when an operation is not permitted in the
// file's current access mode.
type AccessModeError struct {
	Path string
	Op   string
	Mode Mode
}

func (e *AccessModeError) Error() string {
	if e.Mode == Closed {
		return fmt.Sprintf("%s: %s: file is closed", e.Path, e.Op)
	}
	return fmt.Sprintf("%s: %s not permitted in %s mode", e.Path, e.Op, e.Mode)
}

// Is reports ErrClosed for violations caused by a closed file.
func (e *AccessModeError) Is(target error) bool {
	return target == ErrClosed && e.Mode == Closed
}

// MalformedBoxError is returned when box framing is invalid: a declared
// size smaller than the header, or an extent overrunning the enclosing
// scope.
type MalformedBoxError struct {
	Path   string
	Chain  string // enclosing box types, outermost first, e.g. "moov/trak"
	Reason string
	Offset int64
}

func (e *MalformedBoxError) Error() string {
	where := e.Chain
	if where == "" {
		where = "top level"
	}
	return fmt.Sprintf("%s: malformed box at offset %d (in %s): %s", e.Path, e.Offset, where, e.Reason)
}

// RoundTripError reports that re-encoding a decoded payload did not
// reproduce the bytes it was decoded from.
type RoundTripError struct {
	Path   string
	Type   string
	Offset int64
	Want   int // original length
	Got    int // re-encoded length
	At     int // first differing byte
}

func (e *RoundTripError) Error() string {
	return fmt.Sprintf("%s: %s at offset %d does not round-trip: %d bytes decoded, %d re-encoded, first difference at byte %d",
		e.Path, e.Type, e.Offset, e.Want, e.Got, e.At)
}

// Warning represents a non-fatal issue encountered during parsing.
//
// Warnings indicate problems that don't prevent the tree from being
// built but mean part of it is held as opaque bytes. Examples include:
//   - A malformed child inside a container
//   - A payload that failed to decode
//   - A payload that does not re-encode to its original bytes
//
// Warnings are collected on the tree and on the Document.
type Warning struct {
	// Stage where the warning occurred
	Stage string // "parse", "decode", "roundtrip", "save"

	// Warning message
	Message string

	// File offset where the issue occurred (0 if not applicable)
	Offset int64
}

// String returns a human-readable warning message.
func (w Warning) String() string {
	if w.Offset > 0 {
		return fmt.Sprintf("%s (at offset %d): %s", w.Stage, w.Offset, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Stage, w.Message)
}
