package box

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes an indented listing of the tree, one box per line.
func (t *Tree) Dump(w io.Writer) error {
	var err error
	t.Walk(func(id NodeID, depth int) bool {
		if err != nil {
			return false
		}
		n := t.nodes[id]
		size, sizeErr := t.ActualSize(id)
		if sizeErr != nil {
			err = sizeErr
			return false
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s%s (size: %d, offset: %d)", strings.Repeat("  ", depth), n.hdr.Type, size, n.hdr.Offset)
		if n.fresh {
			sb.WriteString(" new")
		}
		switch {
		case n.variant.Kind == KindOpaque:
			sb.WriteString(" [opaque]")
		case n.variant.Full:
			fmt.Fprintf(&sb, " [v%d flags=%06x]", n.full.Version, n.full.Flags)
		}
		if s, ok := n.payload.(fmt.Stringer); ok {
			sb.WriteString(" ")
			sb.WriteString(s.String())
		}
		sb.WriteString("\n")
		_, err = io.WriteString(w, sb.String())
		return true
	})
	return err
}

// Outline is a structural summary of one box, for export.
type Outline struct {
	Type     string    `yaml:"type" cbor:"type"`
	Kind     string    `yaml:"kind" cbor:"kind"`
	Offset   int64     `yaml:"offset" cbor:"offset"`
	Size     int64     `yaml:"size" cbor:"size"`
	Version  *uint8    `yaml:"version,omitempty" cbor:"version,omitempty"`
	Flags    uint32    `yaml:"flags,omitempty" cbor:"flags,omitempty"`
	Summary  string    `yaml:"summary,omitempty" cbor:"summary,omitempty"`
	Children []Outline `yaml:"children,omitempty" cbor:"children,omitempty"`
}

// Outline summarizes the top-level boxes and everything below them.
func (t *Tree) Outline() ([]Outline, error) {
	return t.outline(RootID)
}

func (t *Tree) outline(id NodeID) ([]Outline, error) {
	var out []Outline
	for _, c := range t.live(id) {
		n := t.nodes[c]
		size, err := t.ActualSize(c)
		if err != nil {
			return nil, err
		}
		o := Outline{
			Type:   n.hdr.Type.String(),
			Kind:   n.variant.Kind.String(),
			Offset: n.hdr.Offset,
			Size:   size,
		}
		if n.variant.Full {
			v := n.full.Version
			o.Version, o.Flags = &v, n.full.Flags
		}
		if s, ok := n.payload.(fmt.Stringer); ok {
			o.Summary = s.String()
		}
		if o.Children, err = t.outline(c); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
