package atomtree_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func atom(typ string, parts ...[]byte) []byte {
	body := bytes.Join(parts, nil)
	name := []byte(typ)
	if len(name) != 4 {
		// "©nam" is five bytes in UTF-8; the box code uses the 0xA9 byte.
		name = append([]byte{0xA9}, []byte(typ)[2:]...)
	}
	return cat(u32(uint32(8+len(body))), name, body)
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

// AAC-LC, 44.1 kHz stereo, 128 kb/s average.
var esdsBody = []byte{
	0x03, 0x19, 0x00, 0x01, 0x00,
	0x04, 0x11, 0x40, 0x15, 0x00, 0x00, 0x00,
	0x00, 0x01, 0xF4, 0x00, 0x00, 0x01, 0xF4, 0x00,
	0x05, 0x02, 0x12, 0x10,
	0x06, 0x01, 0x02,
}

var mediaData = bytes.Repeat([]byte("AUDIO"), 20)

func hdlrAtom(handler string) []byte {
	return fullAtom("hdlr", 0, 0, u32(0), []byte(handler), zeros(12), []byte{0})
}

func trakAtom(chunk uint32) []byte {
	mp4a := atom("mp4a",
		zeros(6), u16(1), zeros(8), u16(2), u16(16), zeros(4), u32(44100<<16),
		fullAtom("esds", 0, 0, esdsBody),
	)
	stbl := atom("stbl",
		fullAtom("stsd", 0, 0, u32(1), mp4a),
		fullAtom("stco", 0, 0, u32(1), u32(chunk)),
	)
	mdhd := fullAtom("mdhd", 0, 0, u32(0), u32(0), u32(44100), u32(44100*60), u16(0x15C7), u16(0))
	return atom("trak", atom("mdia", mdhd, hdlrAtom("soun"), atom("minf", stbl)))
}

func mvhdAtom(timescale, duration uint32) []byte {
	return fullAtom("mvhd", 0, 0, u32(0), u32(0), u32(timescale), u32(duration),
		u32(0x00010000), u16(0x0100), zeros(10), zeros(36), zeros(24), u32(2))
}

func chapterEntry(start uint64, title string) []byte {
	return cat(u64(start), []byte{byte(len(title))}, []byte(title))
}

// buildBook returns ftyp, moov and mdat of a one-minute audiobook. With
// withUdta it carries two chapters, a title and a track number.
func buildBook(withUdta bool) []byte {
	ftyp := atom("ftyp", []byte("M4B "), u32(0), []byte("M4B isom"))
	moov := func(chunk uint32) []byte {
		parts := [][]byte{mvhdAtom(1000, 60_000), trakAtom(chunk)}
		if withUdta {
			ilst := atom("ilst",
				atom("©nam", atom("data", u32(1), u32(0), []byte("Book"))),
				atom("trkn", atom("data", u32(0), u32(0), []byte{0, 0, 0, 3, 0, 12, 0, 0})),
			)
			parts = append(parts, atom("udta",
				fullAtom("chpl", 1, 0, u32(0), []byte{2},
					chapterEntry(0, "Intro"), chapterEntry(300_000_000, "Middle")),
				fullAtom("meta", 0, 0, hdlrAtom("mdir"), ilst),
			))
		}
		return atom("moov", parts...)
	}
	chunk := uint32(len(ftyp) + len(moov(0)) + 8)
	return cat(ftyp, moov(chunk), atom("mdat", mediaData))
}

func writeTemp(t testing.TB, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.m4b")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
