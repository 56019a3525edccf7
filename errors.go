package atomtree

import (
	"github.com/simonhull/atomtree/internal/box"
	"github.com/simonhull/atomtree/internal/types"
)

// OutOfBoundsError is an alias to types.OutOfBoundsError.
// Re-exporting from internal/types to maintain public API.
type OutOfBoundsError = types.OutOfBoundsError

// AccessModeError is an alias to types.AccessModeError.
type AccessModeError = types.AccessModeError

// MalformedBoxError is an alias to types.MalformedBoxError.
type MalformedBoxError = types.MalformedBoxError

// RoundTripError is an alias to types.RoundTripError.
type RoundTripError = types.RoundTripError

// Warning is an alias to types.Warning.
type Warning = types.Warning

// ErrClosed is matched by errors.Is when an operation hits a closed file.
var ErrClosed = types.ErrClosed

// RoundTripPolicy is an alias to box.RoundTripPolicy.
type RoundTripPolicy = box.RoundTripPolicy

// Round-trip policies.
const (
	RoundTripReport = box.RoundTripReport
	RoundTripOff    = box.RoundTripOff
	RoundTripStrict = box.RoundTripStrict
)

// Outline is an alias to box.Outline.
type Outline = box.Outline
