package types

import "fmt"

// Mode is the access mode of a random-access file.
type Mode int

const (
	// Read permits reads and seeks only.
	Read Mode = iota

	// ReadWrite additionally permits writes, inserts, removes and truncation.
	ReadWrite

	// Closed permits nothing except a mode change.
	Closed
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "read"
	case ReadWrite:
		return "read-write"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}
