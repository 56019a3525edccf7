package box

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/types"
)

// edit records one splice in the coordinates of the file at the time it
// was applied.
type edit struct {
	at, oldLen, delta int64
}

// Save writes every change made since the last parse or save back to the
// file. Unchanged regions are never rewritten: each changed payload is
// spliced in place, the positions of all later boxes move by the size
// difference, and every enclosing header is rewritten with its new size.
//
// The file is switched to read-write for the duration of the save if it
// was opened read-only. After bytes have moved, stco and co64 entries are
// adjusted so they keep pointing at the same media data.
func (t *Tree) Save(ctx context.Context) (err error) {
	switch t.file.Mode() {
	case types.Closed:
		return &types.AccessModeError{Path: t.file.Name(), Op: "save", Mode: types.Closed}
	case types.Read:
		if err := t.file.SetMode(ctx, types.ReadWrite); err != nil {
			return err
		}
		defer func() {
			if restoreErr := t.file.SetMode(context.WithoutCancel(ctx), types.Read); err == nil {
				err = restoreErr
			}
		}()
	}

	t.edits = t.edits[:0]
	t.placed = make(map[NodeID]bool)
	if err := t.sync(ctx, RootID); err != nil {
		return err
	}
	if len(t.edits) > 0 && !t.opts.SkipChunkOffsetFixup {
		if err := t.fixChunkOffsets(ctx); err != nil {
			return err
		}
	}
	t.logger.Debug("saved", "edits", len(t.edits), "length", t.file.Length())
	return nil
}

// sync writes the changes under id, parents before children.
func (t *Tree) sync(ctx context.Context, id NodeID) error {
	n := t.nodes[id]
	switch n.variant.Kind {
	case KindOpaque:
		if n.override == nil {
			return nil
		}
		if err := t.replace(ctx, id, n.hdr.DataSize(), n.override); err != nil {
			return err
		}
		t.nodes[id].override = nil
		return nil

	case KindData:
		b, err := t.encodeData(id)
		if err != nil {
			return err
		}
		if bytes.Equal(b, n.raw) {
			return nil
		}
		if err := t.replace(ctx, id, int64(len(n.raw)), b); err != nil {
			return err
		}
		t.nodes[id].raw = b
		return nil
	}
	return t.syncContainer(ctx, id)
}

func (t *Tree) syncContainer(ctx context.Context, id NodeID) error {
	var live []NodeID
	for _, c := range t.nodes[id].children {
		if !t.nodes[c].removed {
			live = append(live, c)
			continue
		}
		h := t.nodes[c].hdr
		if err := t.splice(ctx, h.Offset, int64(h.Size), nil); err != nil {
			return err
		}
		if err := t.resize(ctx, id, -int64(h.Size)); err != nil {
			return err
		}
	}
	t.nodes[id].children = live

	if id != RootID && (t.nodes[id].variant.Full || t.nodes[id].payload != nil) {
		b, err := t.encodeFields(id, true)
		if err != nil {
			return err
		}
		if old := t.nodes[id].prefix; !bytes.Equal(b, old) {
			if err := t.replace(ctx, id, int64(len(old)), b); err != nil {
				return err
			}
			t.nodes[id].prefix = b
		}
	}

	last := None
	for _, c := range live {
		if t.nodes[c].fresh {
			continue
		}
		if err := t.sync(ctx, c); err != nil {
			return err
		}
		last = c
	}

	at := t.dataStart(id) + int64(len(t.nodes[id].prefix))
	if last != None {
		at = t.nodes[last].hdr.End()
	}
	for _, c := range live {
		if !t.nodes[c].fresh {
			continue
		}
		if last != None && t.nodes[last].hdr.ToEnd {
			// No longer the last box in scope.
			d, err := t.rewriteHeader(ctx, last)
			if err != nil {
				return err
			}
			if d != 0 {
				if err := t.resize(ctx, id, d); err != nil {
					return err
				}
			}
			at = t.nodes[last].hdr.End()
		}

		var buf bytes.Buffer
		if err := t.renderTo(ctx, c, nil, func(b []byte) error { _, err := buf.Write(b); return err }); err != nil {
			return err
		}
		if err := t.splice(ctx, at, 0, buf.Bytes()); err != nil {
			return err
		}
		if _, err := t.place(c, at); err != nil {
			return err
		}
		if err := t.resize(ctx, id, int64(buf.Len())); err != nil {
			return err
		}
		at = t.nodes[c].hdr.End()
		last = c
	}
	return nil
}

func (t *Tree) dataStart(id NodeID) int64 {
	if id == RootID {
		return 0
	}
	return t.nodes[id].hdr.DataOffset()
}

// replace swaps the first oldLen payload bytes of id for b.
func (t *Tree) replace(ctx context.Context, id NodeID, oldLen int64, b []byte) error {
	if err := t.splice(ctx, t.dataStart(id), oldLen, b); err != nil {
		return err
	}
	if delta := int64(len(b)) - oldLen; delta != 0 {
		return t.resize(ctx, id, delta)
	}
	return nil
}

// splice replaces oldLen file bytes at at with b and moves every box that
// started after the replaced range.
func (t *Tree) splice(ctx context.Context, at, oldLen int64, b []byte) error {
	if err := t.file.Insert(ctx, b, int64(len(b)), at, oldLen); err != nil {
		return err
	}
	delta := int64(len(b)) - oldLen
	if delta == 0 {
		return nil
	}
	end := at + oldLen
	for i := range t.nodes[1:] {
		n := &t.nodes[i+1]
		if !n.fresh && n.hdr.Offset >= end {
			n.hdr.Offset += delta
		}
	}
	t.edits = append(t.edits, edit{at: at, oldLen: oldLen, delta: delta})
	return nil
}

// resize grows id and every ancestor by delta, rewriting their headers.
// A header that needs the 64-bit form grows too, which grows the parent
// further.
func (t *Tree) resize(ctx context.Context, id NodeID, delta int64) error {
	for ; id != None; id = t.nodes[id].parent {
		t.nodes[id].hdr.Size = uint64(int64(t.nodes[id].hdr.Size) + delta)
		if id == RootID {
			return nil
		}
		d, err := t.rewriteHeader(ctx, id)
		if err != nil {
			return err
		}
		delta += d
	}
	return nil
}

// rewriteHeader writes the header of id for its current stored size and
// returns how much the header grew.
func (t *Tree) rewriteHeader(ctx context.Context, id NodeID) (int64, error) {
	old := t.nodes[id].hdr
	h := old
	if h.ToEnd && !t.isLast(id) {
		h.ToEnd = false
	}
	h = h.resized(uint64(old.DataSize()))
	if err := t.splice(ctx, old.Offset, int64(old.Len()), h.Bytes()); err != nil {
		return 0, err
	}
	t.nodes[id].hdr = h
	return int64(h.Len() - old.Len()), nil
}

// place records that the freshly written subtree id now starts at off.
func (t *Tree) place(id NodeID, off int64) (int64, error) {
	h, err := t.header(id)
	if err != nil {
		return 0, err
	}
	h.Offset = off

	n := &t.nodes[id]
	n.hdr, n.fresh = h, false
	t.placed[id] = true

	switch n.variant.Kind {
	case KindOpaque:
		n.override = nil
	case KindData:
		if n.raw, err = t.encodeData(id); err != nil {
			return 0, err
		}
	case KindContainer:
		if n.prefix, err = t.encodeFields(id, true); err != nil {
			return 0, err
		}
		pos := h.DataOffset() + int64(len(n.prefix))
		for _, c := range t.live(id) {
			if pos, err = t.place(c, pos); err != nil {
				return 0, err
			}
		}
	}
	return h.End(), nil
}

// fixChunkOffsets maps the absolute offsets held by stco/co64 payloads
// through this save's edits and writes them back in place.
func (t *Tree) fixChunkOffsets(ctx context.Context) error {
	edits := append([]edit(nil), t.edits...)
	shift := func(off uint64) uint64 {
		o := int64(off)
		for _, e := range edits {
			if o >= e.at+e.oldLen {
				o += e.delta
			}
		}
		return uint64(o)
	}

	var targets []NodeID
	t.Walk(func(id NodeID, _ int) bool {
		if _, ok := t.nodes[id].payload.(OffsetAdjuster); ok && !t.placed[id] && t.nodes[id].variant.Kind == KindData {
			targets = append(targets, id)
		}
		return true
	})

	for _, id := range targets {
		if err := t.nodes[id].payload.(OffsetAdjuster).AdjustOffsets(shift); err != nil {
			return fmt.Errorf("%s: adjusting %s at offset %d: %w", t.file.Name(), t.nodes[id].hdr.Type, t.nodes[id].hdr.Offset, err)
		}
		if err := t.sync(ctx, id); err != nil {
			return err
		}
	}
	t.logger.Debug("chunk offsets adjusted", "tables", len(targets), "edits", len(edits))
	return nil
}

// Render writes the whole tree as it would be saved, without touching the
// file. Opaque payloads are copied in buffer-sized chunks. Unless the
// fixup is disabled, stco and co64 entries are written with the positions
// their media data takes in the output.
func (t *Tree) Render(ctx context.Context, w io.Writer) (int64, error) {
	var shift func(uint64) uint64
	if !t.opts.SkipChunkOffsetFixup {
		l, err := t.layout()
		if err != nil {
			return 0, err
		}
		shift = l.shift
	}
	sw := binary.NewSafeWriter(w)
	err := t.renderTo(ctx, RootID, shift, sw.WriteBytes)
	return sw.Offset(), err
}

// segment maps a file offset to the output offset Render writes it at.
type segment struct {
	src, out int64
}

// layout is sorted by src.
type layout []segment

// shift maps a file offset through the segment that starts at or before
// it. Offsets before every segment are returned unchanged.
func (l layout) shift(off uint64) uint64 {
	o := int64(off)
	i := sort.Search(len(l), func(i int) bool { return l[i].src > o }) - 1
	if i < 0 {
		return off
	}
	return uint64(l[i].out + o - l[i].src)
}

// layout computes where Render places every box that exists in the file,
// and the payload of every opaque box it copies from the file.
func (t *Tree) layout() (layout, error) {
	var l layout
	var walk func(id NodeID, pos int64) (int64, error)
	walk = func(id NodeID, pos int64) (int64, error) {
		n := t.nodes[id]
		if id != RootID {
			h, err := t.header(id)
			if err != nil {
				return 0, err
			}
			if !n.fresh {
				l = append(l, segment{src: n.hdr.Offset, out: pos})
			}
			pos += int64(h.Len())
		}

		switch n.variant.Kind {
		case KindOpaque:
			if n.override != nil || n.fresh {
				return pos + int64(len(n.override)), nil
			}
			l = append(l, segment{src: n.hdr.DataOffset(), out: pos})
			return pos + n.hdr.DataSize(), nil
		case KindData:
			b, err := t.encodeData(id)
			return pos + int64(len(b)), err
		}

		if id != RootID {
			b, err := t.encodeFields(id, true)
			if err != nil {
				return 0, err
			}
			pos += int64(len(b))
		}
		var err error
		for _, c := range t.live(id) {
			if pos, err = walk(c, pos); err != nil {
				return 0, err
			}
		}
		return pos + int64(len(n.tail)), nil
	}

	if _, err := walk(RootID, 0); err != nil {
		return nil, err
	}
	sort.Slice(l, func(i, j int) bool { return l[i].src < l[j].src })
	return l, nil
}

// renderTo streams id to sink. With shift set, the chunk offset tables
// read from the file are written with their entries mapped through it.
func (t *Tree) renderTo(ctx context.Context, id NodeID, shift func(uint64) uint64, sink func([]byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := t.nodes[id]
	if id != RootID {
		h, err := t.header(id)
		if err != nil {
			return err
		}
		if err := sink(h.Bytes()); err != nil {
			return err
		}
	}

	switch n.variant.Kind {
	case KindOpaque:
		if n.override != nil || n.fresh {
			return sink(n.override)
		}
		return t.copyRange(ctx, n.hdr.DataOffset(), n.hdr.DataSize(), sink)
	case KindData:
		b, err := t.encodeData(id)
		if err != nil {
			return err
		}
		if _, ok := n.payload.(OffsetAdjuster); ok && shift != nil && !n.fresh {
			if b, err = t.shifted(id, b, shift); err != nil {
				return err
			}
		}
		return sink(b)
	}

	if id != RootID {
		b, err := t.encodeFields(id, true)
		if err != nil {
			return err
		}
		if err := sink(b); err != nil {
			return err
		}
	}
	for _, c := range t.live(id) {
		if err := t.renderTo(ctx, c, shift, sink); err != nil {
			return err
		}
	}
	if len(n.tail) > 0 {
		return sink(n.tail)
	}
	return nil
}

// shifted re-encodes the chunk offset table b of id with every entry
// mapped through shift. The tree keeps its own copy unchanged.
func (t *Tree) shifted(id NodeID, b []byte, shift func(uint64) uint64) ([]byte, error) {
	n := t.nodes[id]
	fh, p, err := t.decode(b, n.variant)
	if err != nil {
		return nil, err
	}
	oa, ok := p.(OffsetAdjuster)
	if !ok {
		return b, nil
	}
	if err := oa.AdjustOffsets(shift); err != nil {
		return nil, fmt.Errorf("%s: adjusting %s at offset %d: %w", t.file.Name(), n.hdr.Type, n.hdr.Offset, err)
	}
	out := binary.NewBuilder(len(b))
	if n.variant.Full {
		fh.append(out)
	}
	if err := p.Encode(out, fh); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", n.hdr.Type, err)
	}
	return out.Bytes(), nil
}
