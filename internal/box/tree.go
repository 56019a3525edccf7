package box

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/types"
)

// File is the random-access file a tree is parsed from and saved to.
type File interface {
	BlockReader
	Mode() types.Mode
	SetMode(ctx context.Context, mode types.Mode) error
	Length() int64
	BufferSize() int
	Insert(ctx context.Context, data []byte, size, start, replace int64) error
}

// NodeID indexes a box in its tree.
type NodeID int

// None is the parent of the root.
const None NodeID = -1

// RootID is the synthetic container holding the top-level boxes.
const RootID NodeID = 0

type node struct {
	hdr      Header
	parent   NodeID
	children []NodeID
	last     NodeID // last live child, RootID when there is none
	variant  Variant
	full     FullHeader
	payload  Payload
	prefix   []byte // container fixed fields as last written
	raw      []byte // data payload as last written
	tail     []byte // container bytes too short to hold a header
	override []byte // replacement bytes of an opaque box
	fresh    bool   // appended, not yet written
	removed  bool
}

// Tree is the parsed box hierarchy of one file.
//
// Nodes live in a single arena and refer to each other by NodeID. Edits
// change only the in-memory tree until Save. A Tree is not safe for
// concurrent use.
type Tree struct {
	file     File
	opts     Options
	logger   *slog.Logger
	nodes    []node
	warnings []types.Warning
	edits    []edit
	placed   map[NodeID]bool
}

// Parse reads the box hierarchy of f.
func Parse(ctx context.Context, f File, opts Options) (*Tree, error) {
	opts = opts.normalized()
	t := &Tree{
		file:   f,
		opts:   opts,
		logger: opts.Logger.With("file", f.Name()),
	}
	t.nodes = append(t.nodes, node{
		hdr:     Header{Size: uint64(f.Length())},
		parent:  None,
		variant: Container(),
	})

	if err := t.parseChildren(ctx, RootID, 0, f.Length()); err != nil {
		return nil, err
	}
	t.logger.Debug("parsed", "boxes", len(t.nodes)-1, "warnings", len(t.warnings))
	return t, nil
}

func (t *Tree) parseChildren(ctx context.Context, parent NodeID, start, end int64) error {
	for off := start; off < end; {
		if end-off < 8 {
			tail, err := t.file.ReadAt(ctx, off, int(end-off))
			if err != nil {
				return err
			}
			t.nodes[parent].tail = tail
			return nil
		}

		hdr, err := ReadHeader(ctx, t.file, off, end)
		if err != nil {
			var mbe *types.MalformedBoxError
			if errors.As(err, &mbe) && mbe.Chain == "" {
				mbe.Chain = t.chain(parent)
			}
			return err
		}
		if err := t.parseBox(ctx, parent, hdr); err != nil {
			return err
		}
		off = hdr.End()
	}
	return nil
}

func (t *Tree) parseBox(ctx context.Context, parent NodeID, hdr Header) error {
	cand := &Candidate{Header: hdr, Parent: t.nodes[parent].hdr.Type, tree: t, parent: parent}
	v, err := t.opts.Registry.Lookup(hdr.Type, cand.Parent)(ctx, cand)
	if err != nil {
		return fmt.Errorf("%s: resolving %s at offset %d: %w", t.file.Name(), hdr.Type, hdr.Offset, err)
	}

	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{hdr: hdr, parent: parent, variant: v})
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	t.nodes[parent].last = id

	switch v.Kind {
	case KindData:
		return t.parseData(ctx, id)
	case KindContainer:
		return t.parseContainer(ctx, id)
	}
	return nil
}

func (t *Tree) parseData(ctx context.Context, id NodeID) error {
	hdr := t.nodes[id].hdr
	if hdr.DataSize() > t.opts.MaxPayloadSize {
		t.logger.Debug("payload kept opaque", "type", hdr.Type, "size", hdr.DataSize())
		t.nodes[id].variant = Opaque()
		return nil
	}

	raw, err := t.file.ReadAt(ctx, hdr.DataOffset(), int(hdr.DataSize()))
	if err != nil {
		return err
	}
	fh, p, err := t.decode(raw, t.nodes[id].variant)
	if err != nil {
		return t.demote(id, "decode", err)
	}

	n := &t.nodes[id]
	n.full, n.payload, n.raw = fh, p, raw
	if t.opts.RoundTrip == RoundTripOff {
		return nil
	}
	got, err := t.encodeData(id)
	if err != nil {
		return t.demote(id, "encode", err)
	}
	return t.checkRoundTrip(id, raw, got)
}

func (t *Tree) parseContainer(ctx context.Context, id NodeID) error {
	n := t.nodes[id]
	start := n.hdr.DataOffset()

	if n.variant.Full || n.variant.New != nil {
		peek, err := t.file.ReadAt(ctx, start, int(min(prefixPeek, n.hdr.DataSize())))
		if err != nil {
			return err
		}
		r := binary.NewReader(peek, t.file.Name())
		var fh FullHeader
		if n.variant.Full {
			if fh, err = readFullHeader(r); err != nil {
				return t.demote(id, "decode", err)
			}
		}
		var p Payload
		if n.variant.New != nil {
			p = n.variant.New()
			if err := p.Decode(r, fh); err != nil {
				return t.demote(id, "decode", err)
			}
		}
		prefix := peek[:r.Offset()]
		t.nodes[id].full, t.nodes[id].payload, t.nodes[id].prefix = fh, p, prefix

		if t.opts.RoundTrip != RoundTripOff {
			got, err := t.encodeFields(id, false)
			if err != nil {
				return t.demote(id, "encode", err)
			}
			if err := t.checkRoundTrip(id, prefix, got); err != nil || t.nodes[id].variant.Kind == KindOpaque {
				return err
			}
		}
		start += int64(len(prefix))
	}

	err := t.parseChildren(ctx, id, start, n.hdr.End())
	var mbe *types.MalformedBoxError
	if errors.As(err, &mbe) && !t.opts.Strict {
		return t.demote(id, "parse", err)
	}
	return err
}

// decode turns payload bytes into a typed value. Bytes left over after
// Decode are an error: they would be dropped on the next save.
func (t *Tree) decode(b []byte, v Variant) (FullHeader, Payload, error) {
	r := binary.NewReader(b, t.file.Name())
	var fh FullHeader
	var err error
	if v.Full {
		if fh, err = readFullHeader(r); err != nil {
			return fh, nil, err
		}
	}
	if v.New == nil {
		return fh, nil, errors.New("data variant without a payload constructor")
	}
	p := v.New()
	if err := p.Decode(r, fh); err != nil {
		return fh, nil, err
	}
	if r.Remaining() != 0 {
		return fh, nil, fmt.Errorf("%d trailing bytes not decoded", r.Remaining())
	}
	return fh, p, nil
}

func (t *Tree) checkRoundTrip(id NodeID, want, got []byte) error {
	if bytes.Equal(want, got) {
		return nil
	}
	hdr := t.nodes[id].hdr
	at := 0
	for at < len(want) && at < len(got) && want[at] == got[at] {
		at++
	}
	rte := &types.RoundTripError{
		Path: t.file.Name(), Type: hdr.Type.String(), Offset: hdr.Offset,
		Want: len(want), Got: len(got), At: at,
	}
	if t.opts.RoundTrip == RoundTripStrict {
		return rte
	}
	t.warn("roundtrip", hdr.Offset, rte.Error())
	t.makeOpaque(id)
	return nil
}

// demote keeps a box whose contents could not be handled as opaque bytes,
// dropping anything parsed below it. In strict mode the failure is
// returned instead.
func (t *Tree) demote(id NodeID, stage string, cause error) error {
	hdr := t.nodes[id].hdr
	if t.opts.Strict {
		var mbe *types.MalformedBoxError
		if errors.As(cause, &mbe) {
			return cause
		}
		return &types.MalformedBoxError{
			Path: t.file.Name(), Chain: t.chain(t.nodes[id].parent), Offset: hdr.Offset,
			Reason: fmt.Sprintf("%s: %v", hdr.Type, cause),
		}
	}
	t.warn(stage, hdr.Offset, fmt.Sprintf("%s kept as opaque bytes: %v", hdr.Type, cause))
	t.nodes = t.nodes[:id+1]
	t.makeOpaque(id)
	return nil
}

func (t *Tree) makeOpaque(id NodeID) {
	n := &t.nodes[id]
	n.variant = Opaque()
	n.children, n.last, n.payload, n.full = nil, RootID, nil, FullHeader{}
	n.prefix, n.raw, n.tail = nil, nil, nil
}

func (t *Tree) warn(stage string, offset int64, msg string) {
	t.logger.Debug("warning", "stage", stage, "offset", offset, "message", msg)
	t.warnings = append(t.warnings, types.Warning{Stage: stage, Message: msg, Offset: offset})
}

// chain names the boxes enclosing id, outermost first, id included.
func (t *Tree) chain(id NodeID) string {
	var parts []string
	for ; id > RootID; id = t.nodes[id].parent {
		parts = append(parts, t.nodes[id].hdr.Type.String())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

func (t *Tree) handler(from NodeID) (Type, bool) {
	for a := from; a != None; a = t.nodes[a].parent {
		for _, c := range t.nodes[a].children {
			if h, ok := t.nodes[c].payload.(HandlerTyper); ok && !t.nodes[c].removed {
				if ht := h.HandlerType(); ht != (Type{}) {
					return ht, true
				}
			}
		}
	}
	return Type{}, false
}

// encodeData renders a data box's payload, version and flags included.
func (t *Tree) encodeData(id NodeID) ([]byte, error) {
	return t.encodeFields(id, false)
}

// encodeFields renders the version, flags and payload of a data box or
// the fixed fields of a container. With syncCount set, a ChildCounter
// payload first takes the current number of children.
func (t *Tree) encodeFields(id NodeID, syncCount bool) ([]byte, error) {
	n := t.nodes[id]
	b := binary.NewBuilder(len(n.raw) + len(n.prefix))
	if n.variant.Full {
		n.full.append(b)
	}
	if n.payload == nil {
		return b.Bytes(), nil
	}
	if cc, ok := n.payload.(ChildCounter); ok && syncCount {
		cc.SetChildCount(len(t.live(id)))
	}
	if err := n.payload.Encode(b, n.full); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", n.hdr.Type, err)
	}
	return b.Bytes(), nil
}

func (t *Tree) live(id NodeID) []NodeID {
	var out []NodeID
	for _, c := range t.nodes[id].children {
		if !t.nodes[c].removed {
			out = append(out, c)
		}
	}
	return out
}

func (t *Tree) isLast(id NodeID) bool {
	return id != RootID && t.nodes[t.nodes[id].parent].last == id
}

// relast finds the last live child of id after a removal.
func (t *Tree) relast(id NodeID) {
	n := &t.nodes[id]
	n.last = RootID
	for i := len(n.children) - 1; i >= 0; i-- {
		if c := n.children[i]; !t.nodes[c].removed {
			n.last = c
			return
		}
	}
}

// Root returns the synthetic root whose children are the top-level boxes.
func (t *Tree) Root() NodeID { return RootID }

// Warnings returns the non-fatal issues met while parsing.
func (t *Tree) Warnings() []types.Warning { return t.warnings }

// Children returns the children of id in file order, without boxes
// removed since the last save.
func (t *Tree) Children(id NodeID) []NodeID { return t.live(id) }

// Parent returns the parent of id, or None for the root.
func (t *Tree) Parent(id NodeID) NodeID { return t.nodes[id].parent }

// Type returns the type code of id.
func (t *Tree) Type(id NodeID) Type { return t.nodes[id].hdr.Type }

// Header returns the header of id as last parsed or saved. Its sizes are
// stale after an edit; use ActualSize for the current value.
func (t *Tree) Header(id NodeID) Header { return t.nodes[id].hdr }

// Kind returns the structural class of id.
func (t *Tree) Kind(id NodeID) Kind { return t.nodes[id].variant.Kind }

// Payload returns the decoded payload of a data box, the fixed fields of
// a container, or nil. Callers mutate it in place; changes are written by
// Save.
func (t *Tree) Payload(id NodeID) Payload { return t.nodes[id].payload }

// Full returns the version and flags of a full box.
func (t *Tree) Full(id NodeID) FullHeader { return t.nodes[id].full }

// SetFull replaces the version and flags of a full box.
func (t *Tree) SetFull(id NodeID, fh FullHeader) error {
	if !t.nodes[id].variant.Full {
		return fmt.Errorf("%s is not a full box", t.nodes[id].hdr.Type)
	}
	t.nodes[id].full = fh
	return nil
}

// Find follows path from id, taking the first matching child at each step.
func (t *Tree) Find(from NodeID, path ...Type) (NodeID, bool) {
	id := from
next:
	for _, typ := range path {
		for _, c := range t.live(id) {
			if t.nodes[c].hdr.Type == typ {
				id = c
				continue next
			}
		}
		return None, false
	}
	return id, true
}

// FindAll returns every live box of the given type in pre-order.
func (t *Tree) FindAll(typ Type) []NodeID {
	var out []NodeID
	t.Walk(func(id NodeID, _ int) bool {
		if t.nodes[id].hdr.Type == typ {
			out = append(out, id)
		}
		return true
	})
	return out
}

// Walk visits every live box in pre-order with its depth (0 for top-level
// boxes). Returning false skips the box's children.
func (t *Tree) Walk(fn func(id NodeID, depth int) bool) {
	var visit func(id NodeID, depth int)
	visit = func(id NodeID, depth int) {
		for _, c := range t.live(id) {
			if fn(c, depth) {
				visit(c, depth+1)
			}
		}
	}
	visit(RootID, 0)
}

// Data renders the payload of id: version and flags followed by the
// encoded fields for a data box, the raw bytes for an opaque box.
// Containers have no payload of their own.
func (t *Tree) Data(ctx context.Context, id NodeID) ([]byte, error) {
	n := t.nodes[id]
	switch n.variant.Kind {
	case KindData:
		return t.encodeData(id)
	case KindOpaque:
		if n.override != nil || n.fresh {
			return bytes.Clone(n.override), nil
		}
		return t.file.ReadAt(ctx, n.hdr.DataOffset(), int(n.hdr.DataSize()))
	}
	return nil, fmt.Errorf("%s is a container and has no payload", n.hdr.Type)
}

// SetData decodes b into the payload of id. Unless round-trip checks are
// off, b must re-encode to itself.
func (t *Tree) SetData(id NodeID, b []byte) error {
	n := &t.nodes[id]
	switch n.variant.Kind {
	case KindOpaque:
		n.override = bytes.Clone(b)
		return nil
	case KindContainer:
		return fmt.Errorf("%s is a container and has no payload", n.hdr.Type)
	}

	fh, p, err := t.decode(b, n.variant)
	if err != nil {
		return fmt.Errorf("%s: decoding %s: %w", t.file.Name(), n.hdr.Type, err)
	}
	prevFull, prevPayload := n.full, n.payload
	n.full, n.payload = fh, p
	if t.opts.RoundTrip == RoundTripOff {
		return nil
	}

	got, err := t.encodeData(id)
	if err == nil && bytes.Equal(got, b) {
		return nil
	}
	n = &t.nodes[id]
	n.full, n.payload = prevFull, prevPayload
	if err != nil {
		return err
	}
	at := 0
	for at < len(b) && at < len(got) && b[at] == got[at] {
		at++
	}
	return &types.RoundTripError{
		Path: t.file.Name(), Type: n.hdr.Type.String(), Offset: n.hdr.Offset,
		Want: len(b), Got: len(got), At: at,
	}
}

// ActualDataSize returns the payload size implied by the current state,
// as opposed to Header(id).DataSize, the size last written.
func (t *Tree) ActualDataSize(id NodeID) (int64, error) {
	n := t.nodes[id]
	switch n.variant.Kind {
	case KindData:
		b, err := t.encodeData(id)
		return int64(len(b)), err
	case KindOpaque:
		if n.override != nil || n.fresh {
			return int64(len(n.override)), nil
		}
		return n.hdr.DataSize(), nil
	}

	size := int64(len(n.tail))
	if id != RootID {
		fields, err := t.encodeFields(id, true)
		if err != nil {
			return 0, err
		}
		size += int64(len(fields))
	}
	children, err := t.ChildrenSize(id)
	return size + children, err
}

// ChildrenSize returns the summed actual sizes of the children of id.
func (t *Tree) ChildrenSize(id NodeID) (int64, error) {
	var total int64
	for _, c := range t.live(id) {
		size, err := t.ActualSize(c)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

// ActualSize returns the header length plus ActualDataSize.
func (t *Tree) ActualSize(id NodeID) (int64, error) {
	if id == RootID {
		return t.ActualDataSize(id)
	}
	h, err := t.header(id)
	return int64(h.Size), err
}

// HeaderLen returns the length the header of id would be rendered with.
func (t *Tree) HeaderLen(id NodeID) (int, error) {
	h, err := t.header(id)
	return h.Len(), err
}

// header computes the header id would be written with now. A zero-size
// box keeps that form only while it is the last box in its scope.
func (t *Tree) header(id NodeID) (Header, error) {
	size, err := t.ActualDataSize(id)
	if err != nil {
		return Header{}, err
	}
	h := t.nodes[id].hdr
	if h.ToEnd && !t.isLast(id) {
		h.ToEnd = false
	}
	return h.resized(uint64(size)), nil
}

// Append adds a new box of type typ as the last child of parent and
// returns it. A payload is allocated from v; fill it through Payload.
func (t *Tree) Append(parent NodeID, typ Type, v Variant) (NodeID, error) {
	if err := t.appendable(parent); err != nil {
		return None, err
	}
	n := node{hdr: Header{Type: typ}, parent: parent, variant: v, fresh: true}
	switch {
	case v.New != nil:
		n.payload = v.New()
	case v.Kind == KindData:
		return None, fmt.Errorf("%s: data variant without a payload constructor", typ)
	case v.Kind == KindOpaque:
		n.override = []byte{}
	}
	return t.attach(n), nil
}

// AppendRaw adds a new opaque box holding data as the last child of parent.
func (t *Tree) AppendRaw(parent NodeID, typ Type, data []byte) (NodeID, error) {
	if err := t.appendable(parent); err != nil {
		return None, err
	}
	return t.attach(node{
		hdr:      Header{Type: typ},
		parent:   parent,
		variant:  Opaque(),
		override: append([]byte{}, data...),
		fresh:    true,
	}), nil
}

func (t *Tree) appendable(parent NodeID) error {
	if t.nodes[parent].variant.Kind != KindContainer {
		return fmt.Errorf("cannot append to %s: not a container", t.nodes[parent].hdr.Type)
	}
	if t.nodes[parent].removed {
		return fmt.Errorf("cannot append to %s: removed", t.nodes[parent].hdr.Type)
	}
	return nil
}

func (t *Tree) attach(n node) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, n)
	t.nodes[n.parent].children = append(t.nodes[n.parent].children, id)
	t.nodes[n.parent].last = id
	return id
}

// Remove detaches id and its subtree. The bytes are removed from the file
// on Save.
func (t *Tree) Remove(id NodeID) error {
	if id == RootID {
		return errors.New("cannot remove the root")
	}
	n := &t.nodes[id]
	if n.removed {
		return nil
	}
	n.removed = true
	if n.fresh {
		siblings := t.nodes[n.parent].children
		for i, c := range siblings {
			if c == id {
				t.nodes[n.parent].children = append(siblings[:i:i], siblings[i+1:]...)
				break
			}
		}
	}
	if t.nodes[n.parent].last == id {
		t.relast(n.parent)
	}
	return nil
}

// copyRange streams length bytes at off from the file in buffer-sized
// chunks.
func (t *Tree) copyRange(ctx context.Context, off, length int64, sink func([]byte) error) error {
	chunk := int64(max(t.file.BufferSize(), 1))
	for length > 0 {
		n := min(chunk, length)
		b, err := t.file.ReadAt(ctx, off, int(n))
		if err != nil {
			return err
		}
		if err := sink(b); err != nil {
			return err
		}
		off += n
		length -= n
	}
	return nil
}
