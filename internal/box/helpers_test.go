package box

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/fileio"
	"github.com/simonhull/atomtree/internal/types"
)

// atom builds a box with a 32-bit header around the concatenated parts.
func atom(typ string, parts ...[]byte) []byte {
	body := bytes.Join(parts, nil)
	t := TypeOf(typ)
	b := binary.NewBuilder(8 + len(body))
	binary.Write(b, uint32(8+len(body)))
	b.WriteBytes(t[:])
	b.WriteBytes(body)
	return b.Bytes()
}

// fullAtom builds a full box.
func fullAtom(typ string, version uint8, flags uint32, parts ...[]byte) []byte {
	vf := []byte{version, byte(flags >> 16), byte(flags >> 8), byte(flags)}
	return atom(typ, append([][]byte{vf}, parts...)...)
}

func u32(v uint32) []byte {
	b := binary.NewBuilder(4)
	binary.Write(b, v)
	return b.Bytes()
}

func u64(v uint64) []byte {
	b := binary.NewBuilder(8)
	binary.Write(b, v)
	return b.Bytes()
}

func cat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// text is a data payload holding its bytes as a string.
type text struct {
	s string
}

func (p *text) Decode(r *binary.Reader, _ FullHeader) error {
	p.s = string(r.Rest())
	return nil
}

func (p *text) Encode(b *binary.Builder, _ FullHeader) error {
	b.WriteString(p.s)
	return nil
}

func (p *text) String() string { return p.s }

// entryCount is a container prefix with a stored child count.
type entryCount struct {
	n uint32
}

func (p *entryCount) Decode(r *binary.Reader, _ FullHeader) error {
	var err error
	p.n, err = binary.ReadValue[uint32](r, "entry count")
	return err
}

func (p *entryCount) Encode(b *binary.Builder, _ FullHeader) error {
	binary.Write(b, p.n)
	return nil
}

func (p *entryCount) SetChildCount(n int) { p.n = uint32(n) }

// offsets is a chunk offset table.
type offsets struct {
	entries []uint32
}

func (p *offsets) Decode(r *binary.Reader, _ FullHeader) error {
	cr := binary.NewChainReader(r)
	n := binary.ReadChained[uint32](cr, "entry count")
	for i := uint32(0); i < n && cr.Error() == nil; i++ {
		p.entries = append(p.entries, binary.ReadChained[uint32](cr, "chunk offset"))
	}
	return cr.Error()
}

func (p *offsets) Encode(b *binary.Builder, _ FullHeader) error {
	binary.Write(b, uint32(len(p.entries)))
	for _, e := range p.entries {
		binary.Write(b, e)
	}
	return nil
}

func (p *offsets) AdjustOffsets(shift func(uint64) uint64) error {
	for i, e := range p.entries {
		p.entries[i] = uint32(shift(uint64(e)))
	}
	return nil
}

// handler names a media handler.
type handler struct {
	typ Type
}

func (p *handler) Decode(r *binary.Reader, _ FullHeader) error {
	b, err := r.ReadBytes(4, "handler type")
	copy(p.typ[:], b)
	return err
}

func (p *handler) Encode(b *binary.Builder, _ FullHeader) error {
	b.WriteBytes(p.typ[:])
	return nil
}

func (p *handler) HandlerType() Type { return p.typ }

// lossy re-encodes with an extra byte, so it never round-trips.
type lossy struct {
	b []byte
}

func (p *lossy) Decode(r *binary.Reader, _ FullHeader) error {
	p.b = r.Rest()
	return nil
}

func (p *lossy) Encode(b *binary.Builder, _ FullHeader) error {
	b.WriteBytes(p.b)
	b.WriteBytes([]byte{0})
	return nil
}

// wide needs eight bytes.
type wide struct {
	v uint64
}

func (p *wide) Decode(r *binary.Reader, _ FullHeader) error {
	var err error
	p.v, err = binary.ReadValue[uint64](r, "wide value")
	return err
}

func (p *wide) Encode(b *binary.Builder, _ FullHeader) error {
	binary.Write(b, p.v)
	return nil
}

func newText() Payload    { return &text{} }
func newCount() Payload   { return &entryCount{} }
func newOffsets() Payload { return &offsets{} }

// testRegistry resolves a small box set. "entr" boxes under "stsd" are
// decoded only when the enclosing handler is "soun".
func testRegistry() *Registry {
	r := NewRegistry()
	for _, c := range []string{"moov", "trak", "mdia", "minf", "stbl", "dinf", "udta"} {
		r.RegisterAny(TypeOf(c), Static(Container()))
	}
	r.Register(TypeOf("dref"), TypeOf("dinf"), Static(FullContainerWith(newCount)))
	r.Register(TypeOf("url "), TypeOf("dref"), Static(FullData(newText)))
	r.Register(TypeOf("stsd"), TypeOf("stbl"), Static(FullContainerWith(newCount)))
	r.Register(TypeOf("entr"), TypeOf("stsd"), func(_ context.Context, p *Candidate) (Variant, error) {
		if h, ok := p.Handler(); ok && h == TypeOf("soun") {
			return Data(newText), nil
		}
		return Opaque(), nil
	})
	r.RegisterAny(TypeOf("hdlr"), Static(FullData(func() Payload { return &handler{} })))
	r.RegisterAny(TypeOf("stco"), Static(FullData(newOffsets)))
	r.RegisterAny(TypeOf("name"), Static(Data(newText)))
	r.Register(TypeOf("©nam"), TypeOf("udta"), Static(Data(newText)))
	r.RegisterAny(TypeOf("drft"), Static(Data(func() Payload { return &lossy{} })))
	r.RegisterAny(TypeOf("wide"), Static(Data(func() Payload { return &wide{} })))
	r.RegisterAny(TypeOf("peek"), func(ctx context.Context, p *Candidate) (Variant, error) {
		b, err := p.Peek(ctx, 4)
		if err != nil {
			return Variant{}, err
		}
		if string(b) == "TEXT" {
			return Data(newText), nil
		}
		return Opaque(), nil
	})
	return r
}

func parse(t *testing.T, data []byte, opts Options) (*Tree, *fileio.File) {
	t.Helper()
	f := fileio.NewMemory("test.mp4", data, types.ReadWrite, fileio.WithBufferSize(7))
	if opts.Registry == nil {
		opts.Registry = testRegistry()
	}
	tree, err := Parse(context.Background(), f, opts)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return tree, f
}

func render(t *testing.T, tree *Tree) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := tree.Render(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("Render reported %d bytes, wrote %d", n, buf.Len())
	}
	return buf.Bytes()
}

func fileBytes(t *testing.T, f *fileio.File) []byte {
	t.Helper()
	b, err := f.ReadAt(context.Background(), 0, int(f.Length()))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	return b
}

func dump(t *testing.T, tree *Tree) string {
	t.Helper()
	var sb strings.Builder
	if err := tree.Dump(&sb); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	return sb.String()
}

func mustFind(t *testing.T, tree *Tree, path ...string) NodeID {
	t.Helper()
	want := make([]Type, len(path))
	for i, p := range path {
		want[i] = TypeOf(p)
	}
	id, ok := tree.Find(tree.Root(), want...)
	if !ok {
		t.Fatalf("%s not found in\n%s", strings.Join(path, "/"), dump(t, tree))
	}
	return id
}
