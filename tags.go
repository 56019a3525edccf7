package atomtree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/simonhull/atomtree/internal/atoms"
	"github.com/simonhull/atomtree/internal/box"
)

// tagKeys maps friendly tag names to iTunes item types.
var tagKeys = map[string]box.Type{
	"title":        box.TypeOf("©nam"),
	"artist":       box.TypeOf("©ART"),
	"album":        box.TypeOf("©alb"),
	"album_artist": box.TypeOf("aART"),
	"year":         box.TypeOf("©day"),
	"genre":        box.TypeOf("©gen"),
	"comment":      box.TypeOf("©cmt"),
	"composer":     box.TypeOf("©wrt"),
	"encoder":      box.TypeOf("©too"),
	"description":  box.TypeOf("desc"),
	"track":        box.TypeOf("trkn"),
	"disc":         box.TypeOf("disk"),
	"tempo":        box.TypeOf("tmpo"),
	"compilation":  box.TypeOf("cpil"),
}

var (
	trackItem       = box.TypeOf("trkn")
	discItem        = box.TypeOf("disk")
	tempoItem       = box.TypeOf("tmpo")
	compilationItem = box.TypeOf("cpil")
	coverItem       = box.TypeOf("covr")
)

// itemType resolves a tag key: a friendly name such as "title", or an
// item code such as "©nam".
func itemType(key string) (box.Type, error) {
	if t, ok := tagKeys[strings.ToLower(key)]; ok {
		return t, nil
	}
	if t, ok := box.ParseType(key); ok {
		for _, it := range atoms.ItemTypes {
			if it == t && t != atoms.Freeform && t != coverItem {
				return t, nil
			}
		}
	}
	return box.Type{}, fmt.Errorf("unknown tag %q", key)
}

// Tag returns the value of an iTunes metadata item (moov/udta/meta/ilst).
//
// Keys are friendly names ("title", "artist", "track", ...) or item codes
// ("©nam"). Track and disc numbers are formatted as "n/total", or "n" when
// the total is unset.
func (d *Document) Tag(key string) (string, bool) {
	typ, err := itemType(key)
	if err != nil {
		return "", false
	}
	ilst, ok := d.tree.Find(box.RootID, atoms.Moov, atoms.Udta, atoms.Meta, atoms.Ilst)
	if !ok {
		return "", false
	}
	data, ok := d.tree.Find(ilst, typ, atoms.Data)
	if !ok {
		return "", false
	}

	switch p := d.tree.Payload(data).(type) {
	case *atoms.TextData:
		return p.Value, true
	case *atoms.IntData:
		return strconv.FormatInt(p.Int(), 10), true
	case *atoms.BinaryData:
		if typ == trackItem || typ == discItem {
			return formatPair(p.Value)
		}
	}
	return "", false
}

// formatPair decodes the number and total of trkn and disk values.
func formatPair(v []byte) (string, bool) {
	if len(v) < 6 {
		return "", false
	}
	n := int(v[2])<<8 | int(v[3])
	total := int(v[4])<<8 | int(v[5])
	if total == 0 {
		return strconv.Itoa(n), true
	}
	return fmt.Sprintf("%d/%d", n, total), true
}

// parsePair is the inverse of formatPair.
func parsePair(s string, width int) ([]byte, error) {
	num, total, _ := strings.Cut(s, "/")
	n, err := strconv.ParseUint(strings.TrimSpace(num), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("number %q: %w", num, err)
	}
	var t uint64
	if total != "" {
		if t, err = strconv.ParseUint(strings.TrimSpace(total), 10, 16); err != nil {
			return nil, fmt.Errorf("total %q: %w", total, err)
		}
	}
	v := make([]byte, width)
	v[2], v[3] = byte(n>>8), byte(n)
	v[4], v[5] = byte(t>>8), byte(t)
	return v, nil
}

// SetTag sets an iTunes metadata item, replacing its value. An empty value
// removes the item. The meta, hdlr and ilst boxes are created under
// moov/udta if needed. The change is written by Save or SaveAs.
func (d *Document) SetTag(key, value string) error {
	typ, err := itemType(key)
	if err != nil {
		return err
	}
	ilst, found := d.tree.Find(box.RootID, atoms.Moov, atoms.Udta, atoms.Meta, atoms.Ilst)
	if value == "" {
		if !found {
			return nil
		}
		if item, ok := d.tree.Find(ilst, typ); ok {
			return d.tree.Remove(item)
		}
		return nil
	}

	payload, err := itemPayload(typ, value)
	if err != nil {
		return fmt.Errorf("tag %s: %w", key, err)
	}
	if !found {
		if ilst, err = d.createItemList(); err != nil {
			return err
		}
	}

	item, ok := d.tree.Find(ilst, typ)
	if ok {
		for _, c := range d.tree.Children(item) {
			if err := d.tree.Remove(c); err != nil {
				return err
			}
		}
	} else if item, err = d.tree.Append(ilst, typ, box.Container()); err != nil {
		return err
	}

	_, err = d.tree.Append(item, atoms.Data, box.Data(func() box.Payload { return payload }))
	return err
}

// itemPayload builds the data payload stored for value.
func itemPayload(typ box.Type, value string) (box.Payload, error) {
	switch typ {
	case trackItem, discItem:
		width := 8
		if typ == discItem {
			width = 6
		}
		v, err := parsePair(value, width)
		if err != nil {
			return nil, err
		}
		return &atoms.BinaryData{DataHeader: atoms.DataHeader{Type: atoms.DataTypeImplicit}, Value: v}, nil

	case tempoItem, compilationItem:
		width, bits := 2, 15
		if typ == compilationItem {
			width, bits = 1, 7
		}
		n, err := strconv.ParseUint(value, 10, bits)
		if err != nil {
			return nil, err
		}
		return &atoms.IntData{DataHeader: atoms.DataHeader{Type: atoms.DataTypeSigned}, Width: width, Bits: n}, nil
	}
	return &atoms.TextData{DataHeader: atoms.DataHeader{Type: atoms.DataTypeUTF8}, Value: value}, nil
}

// createItemList appends an ISO meta box with an mdir handler and an
// empty ilst under moov/udta. An existing meta box is reused.
func (d *Document) createItemList() (box.NodeID, error) {
	udta, err := d.ensure(atoms.Moov, atoms.Udta)
	if err != nil {
		return box.None, err
	}
	meta, ok := d.tree.Find(udta, atoms.Meta)
	if !ok {
		if meta, err = d.tree.Append(udta, atoms.Meta, box.FullContainer()); err != nil {
			return box.None, err
		}
	}
	if _, ok := d.tree.Find(meta, atoms.Hdlr); !ok {
		hdlr, err := d.tree.Append(meta, atoms.Hdlr, box.FullData(func() box.Payload { return &atoms.Handler{} }))
		if err != nil {
			return box.None, err
		}
		h := d.tree.Payload(hdlr).(*atoms.Handler)
		h.Type, h.Name = atoms.HandlerMetadata, []byte{0}
	}
	return d.tree.Append(meta, atoms.Ilst, box.Container())
}
