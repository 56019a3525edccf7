package box

import "github.com/simonhull/atomtree/internal/binary"

// Payload is the typed projection of a box's bytes.
//
// For a data box it is the whole payload after the full-box header. For a
// container it is the fixed fields between the header and the first child
// (the entry count of stsd, say). Decode must consume exactly the bytes it
// encodes: the tree checks that Encode reproduces what Decode read.
type Payload interface {
	Decode(r *binary.Reader, h FullHeader) error
	Encode(b *binary.Builder, h FullHeader) error
}

// ChildCounter is implemented by container payloads that store the number
// of children. The count is synced before the payload is rendered.
type ChildCounter interface {
	SetChildCount(n int)
}

// HandlerTyper is implemented by payloads that name the media handler of
// their enclosing track or meta box.
type HandlerTyper interface {
	HandlerType() Type
}

// OffsetAdjuster is implemented by payloads holding absolute file offsets.
// After a save moves bytes, shift maps each old offset to its new value;
// an offset that no longer fits is an error.
type OffsetAdjuster interface {
	AdjustOffsets(shift func(uint64) uint64) error
}

// Kind is the structural class of a box.
type Kind int

const (
	// KindOpaque boxes keep their payload as raw bytes.
	KindOpaque Kind = iota
	// KindContainer boxes hold children, optionally after fixed fields.
	KindContainer
	// KindData boxes hold a decoded payload.
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindData:
		return "data"
	default:
		return "opaque"
	}
}

// Variant tells the tree how to treat a box. Constructors return one.
type Variant struct {
	Kind Kind
	Full bool           // version and flags precede the payload
	New  func() Payload // nil for plain containers and opaque boxes
}

// Opaque keeps the payload as bytes.
func Opaque() Variant { return Variant{Kind: KindOpaque} }

// Container holds children only.
func Container() Variant { return Variant{Kind: KindContainer} }

// FullContainer holds version, flags and children.
func FullContainer() Variant { return Variant{Kind: KindContainer, Full: true} }

// ContainerWith holds fixed fields followed by children.
func ContainerWith(newPayload func() Payload) Variant {
	return Variant{Kind: KindContainer, New: newPayload}
}

// FullContainerWith holds version, flags, fixed fields and children.
func FullContainerWith(newPayload func() Payload) Variant {
	return Variant{Kind: KindContainer, Full: true, New: newPayload}
}

// Data holds a decoded payload.
func Data(newPayload func() Payload) Variant {
	return Variant{Kind: KindData, New: newPayload}
}

// FullData holds version, flags and a decoded payload.
func FullData(newPayload func() Payload) Variant {
	return Variant{Kind: KindData, Full: true, New: newPayload}
}
