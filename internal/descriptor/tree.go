package descriptor

import (
	"fmt"

	"github.com/simonhull/atomtree/internal/binary"
)

// ID identifies a descriptor within its Tree.
type ID int

// None is the parent of root descriptors.
const None ID = -1

type node struct {
	tag      Tag
	width    int // size field width as parsed, 0 for appended nodes
	body     Body
	parent   ID
	children []ID
}

// Tree is an arena of descriptors. A payload may hold several root
// descriptors back to back.
type Tree struct {
	nodes []node
	roots []ID
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// Parse decodes every descriptor in b. It fails on a size overrunning its
// scope, a truncated body, or bytes left over after a structured body
// that do not frame as descriptors.
func Parse(b []byte) (*Tree, error) {
	t := &Tree{}
	roots, err := t.parseSeq(b, None, 0)
	if err != nil {
		return nil, err
	}
	t.roots = roots
	return t, nil
}

func (t *Tree) parseSeq(b []byte, parent ID, base int) ([]ID, error) {
	var ids []ID
	for off := 0; off < len(b); {
		if len(b)-off < 2 {
			return nil, fmt.Errorf("descriptor at byte %d: %d trailing bytes", base+off, len(b)-off)
		}
		tag := Tag(b[off])
		size, width, err := readSize(b[off+1:])
		if err != nil {
			return nil, fmt.Errorf("%s at byte %d: %w", tag, base+off, err)
		}
		start := off + 1 + width
		if size > len(b)-start {
			return nil, fmt.Errorf("%s at byte %d: size %d overruns %d available bytes", tag, base+off, size, len(b)-start)
		}
		id, err := t.parseOne(tag, width, b[start:start+size], parent, base+start)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		off = start + size
	}
	return ids, nil
}

func (t *Tree) parseOne(tag Tag, width int, body []byte, parent ID, base int) (ID, error) {
	v, nests := newBody(tag)
	r := binary.NewReader(body, tag.String())
	if err := v.Decode(r); err != nil {
		return None, fmt.Errorf("%s at byte %d: %w", tag, base, err)
	}

	id := ID(len(t.nodes))
	t.nodes = append(t.nodes, node{tag: tag, width: width, body: v, parent: parent})

	if r.Remaining() == 0 {
		return id, nil
	}
	if !nests {
		return None, fmt.Errorf("%s at byte %d: %d undecoded bytes", tag, base, r.Remaining())
	}
	children, err := t.parseSeq(body[r.Offset():], id, base+r.Offset())
	if err != nil {
		return None, err
	}
	t.nodes[id].children = children
	return id, nil
}

// Encode serializes the tree. Each size field keeps its parsed width
// unless the body has outgrown it.
func (t *Tree) Encode() ([]byte, error) {
	var out []byte
	for _, id := range t.roots {
		var err error
		if out, err = t.encode(out, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *Tree) encode(dst []byte, id ID) ([]byte, error) {
	n := &t.nodes[id]
	b := binary.NewBuilder(32)
	if err := n.body.Encode(b); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", n.tag, err)
	}
	body := b.Bytes()
	for _, c := range n.children {
		var err error
		if body, err = t.encode(body, c); err != nil {
			return nil, err
		}
	}
	if len(body) > MaxSize {
		return nil, fmt.Errorf("encoding %s: body of %d bytes exceeds %d", n.tag, len(body), MaxSize)
	}

	width := max(n.width, sizeWidth(len(body)))
	dst = append(dst, byte(n.tag))
	dst = appendSize(dst, len(body), width)
	return append(dst, body...), nil
}

// Append adds a descriptor under parent, or as a new root when parent is
// None. Only nesting classes (ES and DecoderConfig) accept children.
func (t *Tree) Append(parent ID, tag Tag, body Body) (ID, error) {
	if parent != None {
		if !t.valid(parent) {
			return None, fmt.Errorf("descriptor %d does not exist", parent)
		}
		if e, ok := factory[t.nodes[parent].tag]; !ok || !e.nests {
			return None, fmt.Errorf("%s cannot hold descriptors", t.nodes[parent].tag)
		}
	}
	id := ID(len(t.nodes))
	t.nodes = append(t.nodes, node{tag: tag, body: body, parent: parent})
	if parent == None {
		t.roots = append(t.roots, id)
	} else {
		t.nodes[parent].children = append(t.nodes[parent].children, id)
	}
	return id, nil
}

func (t *Tree) valid(id ID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// Roots returns the top-level descriptors in order.
func (t *Tree) Roots() []ID {
	return append([]ID(nil), t.roots...)
}

// Children returns the descriptors nested in id.
func (t *Tree) Children(id ID) []ID {
	return append([]ID(nil), t.nodes[id].children...)
}

// Parent returns the enclosing descriptor, or None for a root.
func (t *Tree) Parent(id ID) ID {
	return t.nodes[id].parent
}

func (t *Tree) Tag(id ID) Tag {
	return t.nodes[id].tag
}

// Body returns the decoded body. Mutations are picked up by Encode.
func (t *Tree) Body(id ID) Body {
	return t.nodes[id].body
}

// Find returns the first descriptor with the given tag in pre-order.
func (t *Tree) Find(tag Tag) (ID, bool) {
	var walk func(ids []ID) (ID, bool)
	walk = func(ids []ID) (ID, bool) {
		for _, id := range ids {
			if t.nodes[id].tag == tag {
				return id, true
			}
			if found, ok := walk(t.nodes[id].children); ok {
				return found, true
			}
		}
		return None, false
	}
	return walk(t.roots)
}

// Len returns the number of descriptors in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}
