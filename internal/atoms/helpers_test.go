package atoms

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/box"
	"github.com/simonhull/atomtree/internal/fileio"
	"github.com/simonhull/atomtree/internal/types"
)

func atom(typ string, parts ...[]byte) []byte {
	body := bytes.Join(parts, nil)
	t := box.TypeOf(typ)
	b := binary.NewBuilder(8 + len(body))
	binary.Write(b, uint32(8+len(body)))
	b.WriteBytes(t[:])
	b.WriteBytes(body)
	return b.Bytes()
}

func fullAtom(typ string, version uint8, flags uint32, parts ...[]byte) []byte {
	vf := []byte{version, byte(flags >> 16), byte(flags >> 8), byte(flags)}
	return atom(typ, append([][]byte{vf}, parts...)...)
}

func u16(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }

func u32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func u64(v uint64) []byte { return append(u32(uint32(v>>32)), u32(uint32(v))...) }

func zeros(n int) []byte { return make([]byte, n) }

func cat(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

// esdsBody is an AAC-LC, 44.1 kHz stereo descriptor tree.
var esdsBody = []byte{
	0x03, 0x19, 0x00, 0x01, 0x00,
	0x04, 0x11, 0x40, 0x15, 0x00, 0x00, 0x00,
	0x00, 0x01, 0xF4, 0x00, 0x00, 0x01, 0xF4, 0x00,
	0x05, 0x02, 0x12, 0x10,
	0x06, 0x01, 0x02,
}

func audioEntry(channels, bits uint16, rate uint32) []byte {
	return cat(zeros(6), u16(1), u16(0), u16(0), u32(0), u16(channels), u16(bits), u16(0), u16(0), u32(rate<<16))
}

func hdlrAtom(handler, name string) []byte {
	return fullAtom("hdlr", 0, 0, u32(0), []byte(handler), zeros(12), []byte(name+"\x00"))
}

func mvhdAtom(timescale, duration uint32) []byte {
	matrix := cat(u32(0x00010000), u32(0), u32(0), u32(0), u32(0x00010000), u32(0), u32(0), u32(0), u32(0x40000000))
	return fullAtom("mvhd", 0, 0, u32(0), u32(0), u32(timescale), u32(duration),
		u32(0x00010000), u16(0x0100), zeros(10), matrix, zeros(24), u32(2))
}

func mdhdAtom(timescale, duration uint32) []byte {
	return fullAtom("mdhd", 0, 0, u32(0), u32(0), u32(timescale), u32(duration), u16(0x15C7), u16(0))
}

func dataAtom(typ uint32, value []byte) []byte {
	return atom("data", u32(typ), u32(0), value)
}

type chapterSpec struct {
	start uint64
	title string
}

func chplBody(chapters ...chapterSpec) []byte {
	parts := [][]byte{{byte(len(chapters))}}
	for _, c := range chapters {
		parts = append(parts, u64(c.start), []byte{byte(len(c.title))}, []byte(c.title))
	}
	return cat(parts...)
}

var mdatPayload = []byte("SAMPLEDATA")

// sampleFile builds ftyp, moov and mdat for a one-track audio file whose
// single chunk offset points at the mdat payload.
func sampleFile(handler string) []byte {
	ftyp := atom("ftyp", []byte("M4A "), u32(0x200), []byte("M4A isommp42"))
	build := func(chunk uint32) []byte {
		mp4a := atom("mp4a", audioEntry(2, 16, 44100), fullAtom("esds", 0, 0, esdsBody))
		stbl := atom("stbl",
			fullAtom("stsd", 0, 0, u32(1), mp4a),
			fullAtom("stco", 0, 0, u32(1), u32(chunk)),
		)
		minf := atom("minf",
			atom("dinf", fullAtom("dref", 0, 0, u32(1), fullAtom("url ", 0, SelfContained))),
			stbl,
		)
		trak := atom("trak", atom("mdia", mdhdAtom(44100, 441000), hdlrAtom(handler, "SoundHandler"), minf))
		ilst := atom("ilst",
			atom("©nam", dataAtom(DataTypeUTF8, []byte("Title"))),
			atom("trkn", dataAtom(DataTypeImplicit, []byte{0, 0, 0, 3, 0, 12, 0, 0})),
			atom("tmpo", dataAtom(DataTypeSigned, []byte{0xFF, 0x85})),
		)
		udta := atom("udta",
			fullAtom("chpl", 1, 0, u32(0), chplBody(chapterSpec{0, "Intro"}, chapterSpec{50_000_000, "Café"})),
			fullAtom("meta", 0, 0, hdlrAtom("mdir", ""), ilst),
		)
		return atom("moov", mvhdAtom(1000, 10_000), trak, udta)
	}
	moov := build(uint32(len(ftyp) + len(build(0)) + 8))
	return cat(ftyp, moov, atom("mdat", mdatPayload))
}

func parse(t *testing.T, data []byte) (*box.Tree, *fileio.File) {
	t.Helper()
	f := fileio.NewMemory("test.m4a", data, types.ReadWrite)
	tree, err := box.Parse(context.Background(), f, box.Options{RoundTrip: box.RoundTripStrict})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return tree, f
}

func dump(t *testing.T, tree *box.Tree) string {
	t.Helper()
	var sb strings.Builder
	if err := tree.Dump(&sb); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	return sb.String()
}

func mustFind(t *testing.T, tree *box.Tree, path ...string) box.NodeID {
	t.Helper()
	want := make([]box.Type, len(path))
	for i, p := range path {
		want[i] = box.TypeOf(p)
	}
	id, ok := tree.Find(tree.Root(), want...)
	if !ok {
		t.Fatalf("%s not found in\n%s", strings.Join(path, "/"), dump(t, tree))
	}
	return id
}

func fileBytes(t *testing.T, f *fileio.File) []byte {
	t.Helper()
	b, err := f.ReadAt(context.Background(), 0, int(f.Length()))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	return b
}
