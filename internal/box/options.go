package box

import (
	"fmt"
	"log/slog"
	"strings"
)

// RoundTripPolicy decides what happens when a decoded payload does not
// re-encode to the bytes it was decoded from.
type RoundTripPolicy int

const (
	// RoundTripReport keeps the box as opaque bytes and records a warning.
	RoundTripReport RoundTripPolicy = iota
	// RoundTripOff skips the check.
	RoundTripOff
	// RoundTripStrict fails the parse with a RoundTripError.
	RoundTripStrict
)

func (p RoundTripPolicy) String() string {
	switch p {
	case RoundTripOff:
		return "off"
	case RoundTripStrict:
		return "strict"
	default:
		return "report"
	}
}

// ParseRoundTripPolicy accepts "off", "report" or "strict".
func ParseRoundTripPolicy(s string) (RoundTripPolicy, error) {
	switch strings.ToLower(s) {
	case "off":
		return RoundTripOff, nil
	case "report", "":
		return RoundTripReport, nil
	case "strict":
		return RoundTripStrict, nil
	}
	return RoundTripReport, fmt.Errorf("unknown round-trip policy %q", s)
}

// DefaultMaxPayloadSize is the largest data payload decoded in memory.
// Larger boxes stay opaque.
const DefaultMaxPayloadSize = 16 << 20

// prefixPeek bounds the bytes read to decode a container's fixed fields.
const prefixPeek = 512

// Options configures parsing and saving. The zero value is usable.
type Options struct {
	Registry *Registry // nil means Default

	RoundTrip RoundTripPolicy

	// Strict makes a malformed nested box or an undecodable payload fail
	// the parse instead of turning the enclosing box opaque.
	Strict bool

	MaxPayloadSize int64 // 0 means DefaultMaxPayloadSize

	Logger *slog.Logger

	// SkipChunkOffsetFixup leaves stco/co64 entries untouched on save.
	SkipChunkOffsetFixup bool
}

func (o Options) normalized() Options {
	if o.Registry == nil {
		o.Registry = Default
	}
	if o.MaxPayloadSize <= 0 {
		o.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}
