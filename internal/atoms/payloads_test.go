package atoms

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/box"
)

func TestChapterList_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		chapters []chapterSpec
	}{
		{"none", nil},
		{"one", []chapterSpec{{0, "Prologue"}}},
		{"three non-ascii", []chapterSpec{
			{0, "Ελληνικά"},
			{12_345_678_900, "日本語の章"},
			{98_765_432_100, "Café, fin"},
		}},
	}

	for _, tt := range tests {
		for _, version := range []uint8{0, 1} {
			t.Run(fmt.Sprintf("%s/v%d", tt.name, version), func(t *testing.T) {
				body := chplBody(tt.chapters...)
				if version == 1 {
					body = cat(u32(0), body)
				}
				fh := box.FullHeader{Version: version}

				var p ChapterList
				if err := p.Decode(binary.NewReader(body, "test"), fh); err != nil {
					t.Fatalf("Decode: %v", err)
				}
				if len(p.Chapters) != len(tt.chapters) {
					t.Fatalf("got %d chapters, want %d", len(p.Chapters), len(tt.chapters))
				}
				for i, c := range tt.chapters {
					if p.Chapters[i].Start != c.start || p.Chapters[i].Title != c.title {
						t.Errorf("chapter %d = %+v, want %+v", i, p.Chapters[i], c)
					}
				}

				b := binary.NewBuilder(len(body))
				if err := p.Encode(b, fh); err != nil {
					t.Fatalf("Encode: %v", err)
				}
				if !bytes.Equal(b.Bytes(), body) {
					t.Errorf("Encode() = % x\nwant       % x", b.Bytes(), body)
				}
			})
		}
	}
}

func TestChapterList_Limits(t *testing.T) {
	many := ChapterList{Chapters: make([]ChapterMark, 256)}
	if err := many.Encode(binary.NewBuilder(0), box.FullHeader{}); err == nil {
		t.Error("256 chapters should fail to encode")
	}
	long := ChapterList{Chapters: []ChapterMark{{Title: strings.Repeat("x", 256)}}}
	if err := long.Encode(binary.NewBuilder(0), box.FullHeader{}); err == nil {
		t.Error("256-byte title should fail to encode")
	}
	truncated := []byte{2, 0, 0, 0, 0, 0, 0, 0, 0, 1, 'A'}
	if err := new(ChapterList).Decode(binary.NewReader(truncated, "test"), box.FullHeader{}); err == nil {
		t.Error("truncated chapter list should fail to decode")
	}
	if got := (ChapterMark{Start: 10_000_000}).StartTime(); got != time.Second {
		t.Errorf("StartTime() = %s, want 1s", got)
	}
}

func TestData_Variants(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		check func(t *testing.T, p box.Payload)
	}{
		{
			name: "utf-8",
			data: dataAtom(DataTypeUTF8, []byte("Größe")),
			check: func(t *testing.T, p box.Payload) {
				if v := p.(*TextData).Value; v != "Größe" {
					t.Errorf("value = %q", v)
				}
			},
		},
		{
			name: "utf-16",
			data: dataAtom(DataTypeUTF16, []byte{0x00, 'A', 0x00, 0xF1}),
			check: func(t *testing.T, p box.Payload) {
				if v := p.(*TextData).Value; v != "Añ" {
					t.Errorf("value = %q", v)
				}
			},
		},
		{
			name: "signed",
			data: dataAtom(DataTypeSigned, []byte{0x85}),
			check: func(t *testing.T, p box.Payload) {
				if v := p.(*IntData).Int(); v != -123 {
					t.Errorf("value = %d", v)
				}
			},
		},
		{
			name: "unsigned",
			data: dataAtom(DataTypeUnsigned, []byte{0x01, 0x2C}),
			check: func(t *testing.T, p box.Payload) {
				if v := p.(*IntData).Int(); v != 300 {
					t.Errorf("value = %d", v)
				}
			},
		},
		{
			name: "jpeg",
			data: dataAtom(DataTypeJPEG, []byte{0xFF, 0xD8, 0xFF, 0xE0}),
			check: func(t *testing.T, p box.Payload) {
				if m := p.(*BinaryData).MIMEType(); m != "image/jpeg" {
					t.Errorf("MIMEType() = %q", m)
				}
			},
		},
		{
			name: "implicit",
			data: dataAtom(DataTypeImplicit, []byte{0, 0, 0, 1, 0, 2}),
			check: func(t *testing.T, p box.Payload) {
				if v := p.(*BinaryData); v.MIMEType() != "" || len(v.Value) != 6 {
					t.Errorf("value = %v", v)
				}
			},
		},
		{
			name:  "unknown type",
			data:  dataAtom(99, []byte("??")),
			check: nil,
		},
		{
			name:  "reserved byte set",
			data:  dataAtom(0x01000001, []byte("x")),
			check: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := atom("moov", atom("udta", fullAtom("meta", 0, 0, hdlrAtom("mdir", ""),
				atom("ilst", atom("©nam", tt.data)))))
			tree, _ := parse(t, file)
			id := mustFind(t, tree, "moov", "udta", "meta", "ilst", "©nam", "data")
			if tt.check == nil {
				if tree.Kind(id) != box.KindOpaque {
					t.Errorf("kind = %s, want opaque", tree.Kind(id))
				}
				return
			}
			if tree.Kind(id) != box.KindData {
				t.Fatalf("kind = %s, want data", tree.Kind(id))
			}
			tt.check(t, tree.Payload(id))
		})
	}
}

func TestIntData_Widths(t *testing.T) {
	bad := []byte{0, 0, 0, 21, 0, 0, 0, 0, 1, 2, 3, 4, 5}
	if err := new(IntData).Decode(binary.NewReader(bad, "test"), box.FullHeader{}); err == nil {
		t.Error("5-byte integer should fail to decode")
	}
	if err := (&IntData{Width: 5}).Encode(binary.NewBuilder(0), box.FullHeader{}); err == nil {
		t.Error("width 5 should fail to encode")
	}
	p := IntData{DataHeader: DataHeader{Type: DataTypeSigned}, Width: 3, Bits: 0xFFFFFE}
	if p.Int() != -2 {
		t.Errorf("Int() = %d, want -2", p.Int())
	}
}

func TestSave_ChunkOffsetsFollowMdat(t *testing.T) {
	tree, f := parse(t, sampleFile("soun"))

	stcoID := mustFind(t, tree, "moov", "trak", "mdia", "minf", "stbl", "stco")
	before := tree.Payload(stcoID).(*ChunkOffsets).Offsets[0]

	chpl := tree.Payload(mustFind(t, tree, "moov", "udta", "chpl")).(*ChapterList)
	chpl.Chapters = append(chpl.Chapters, ChapterMark{Start: 80_000_000, Title: "Epilogue"})
	if err := tree.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	after := tree.Payload(stcoID).(*ChunkOffsets).Offsets[0]
	if want := before + 8 + 1 + uint32(len("Epilogue")); after != want {
		t.Errorf("chunk offset = %d, want %d", after, want)
	}
	got, err := f.ReadAt(context.Background(), int64(after), len(mdatPayload))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, mdatPayload) {
		t.Errorf("chunk offset points at %q", got)
	}

	again, _ := parse(t, fileBytes(t, f))
	if off := again.Payload(mustFind(t, again, "moov", "trak", "mdia", "minf", "stbl", "stco")).(*ChunkOffsets).Offsets[0]; off != after {
		t.Errorf("reparsed chunk offset = %d, want %d", off, after)
	}
	if n := len(again.Payload(mustFind(t, again, "moov", "udta", "chpl")).(*ChapterList).Chapters); n != 3 {
		t.Errorf("reparsed chapters = %d, want 3", n)
	}
}

func TestChunkOffsets_Adjust(t *testing.T) {
	shift := func(o uint64) uint64 { return o + 0x100 }

	small := ChunkOffsets{Offsets: []uint32{0x10, 0x20}}
	if err := small.AdjustOffsets(shift); err != nil {
		t.Fatalf("AdjustOffsets: %v", err)
	}
	if small.Offsets[0] != 0x110 || small.Offsets[1] != 0x120 {
		t.Errorf("offsets = %x", small.Offsets)
	}

	overflow := ChunkOffsets{Offsets: []uint32{0xFFFFFFF0}}
	if err := overflow.AdjustOffsets(shift); err == nil {
		t.Error("32-bit overflow should fail")
	}

	wide := ChunkOffsets64{Offsets: []uint64{0xFFFFFFF0}}
	if err := wide.AdjustOffsets(shift); err != nil || wide.Offsets[0] != 0x1000000F0 {
		t.Errorf("co64 = %x, %v", wide.Offsets, err)
	}

	short := cat(u32(3), u32(1))
	if err := new(ChunkOffsets).Decode(binary.NewReader(short, "test"), box.FullHeader{}); err == nil {
		t.Error("table shorter than its count should fail")
	}
}

func TestMediaHeader(t *testing.T) {
	body := cat(u64(1), u64(2), u32(48000), u64(48000*90), u16(0x15C7), u16(0))
	var p MediaHeader
	if err := p.Decode(binary.NewReader(body, "test"), box.FullHeader{Version: 1}); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Language != "eng" || p.Length() != 90*time.Second || p.CreationTime != 1 {
		t.Errorf("mdhd = %s", &p)
	}
	b := binary.NewBuilder(len(body))
	if err := p.Encode(b, box.FullHeader{Version: 1}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(b.Bytes(), body) {
		t.Errorf("Encode() = % x, want % x", b.Bytes(), body)
	}

	p.Language = "EN"
	if err := p.Encode(binary.NewBuilder(0), box.FullHeader{Version: 1}); err == nil {
		t.Error("two-letter language should fail")
	}
	p.Language = "ENG"
	if err := p.Encode(binary.NewBuilder(0), box.FullHeader{Version: 1}); err == nil {
		t.Error("upper-case language should fail")
	}
}

func TestMovieHeader_Versions(t *testing.T) {
	var p MovieHeader
	p.Timescale, p.Duration = 1000, 1<<33
	if err := p.Encode(binary.NewBuilder(0), box.FullHeader{Version: 0}); err == nil {
		t.Error("64-bit duration should not encode as version 0")
	}
	if err := p.Encode(binary.NewBuilder(0), box.FullHeader{Version: 1}); err != nil {
		t.Errorf("version 1: %v", err)
	}
	if err := p.Decode(binary.NewReader(zeros(120), "test"), box.FullHeader{Version: 2}); err == nil {
		t.Error("version 2 should fail to decode")
	}
	if (&MovieHeader{}).Length() != 0 {
		t.Error("Length() without a timescale should be zero")
	}
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name    string
		h       Handler
		typ     box.Type
		display string
	}{
		{"iso", Handler{Type: HandlerSound, Name: []byte("SoundHandler\x00")}, HandlerSound, "SoundHandler"},
		{"quicktime media", Handler{ComponentType: box.TypeOf("mhlr"), Type: HandlerSound, Name: []byte("\x05Apple")}, HandlerSound, "Apple"},
		{"quicktime data", Handler{ComponentType: box.TypeOf("dhlr"), Type: box.TypeOf("alis"), Name: []byte{0}}, box.Type{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.h.HandlerType(); got != tt.typ {
				t.Errorf("HandlerType() = %q, want %q", got, tt.typ)
			}
			if got := tt.h.NameString(); got != tt.display {
				t.Errorf("NameString() = %q, want %q", got, tt.display)
			}
		})
	}
}

func TestFileType_Malformed(t *testing.T) {
	body := cat([]byte("M4A "), u32(0), []byte("isom"), []byte("mp"))
	if err := new(FileType).Decode(binary.NewReader(body, "test"), box.FullHeader{}); err == nil {
		t.Error("partial compatible brand should fail")
	}
}

func TestCodecName(t *testing.T) {
	tests := []struct {
		fourCC   string
		expected string
	}{
		{"mhm1", "xHE-AAC"},
		{"ec-3", "E-AC-3"},
		{"mp4a", "AAC"},
		{"alac", "Apple Lossless"},
		{"fLaC", "FLAC"},
		{"Opus", "Opus"},
		{"UNKN", "UNKN"},
	}

	for _, tt := range tests {
		t.Run(tt.fourCC, func(t *testing.T) {
			if got := CodecName(box.TypeOf(tt.fourCC)); got != tt.expected {
				t.Errorf("CodecName(%q) = %q, want %q", tt.fourCC, got, tt.expected)
			}
		})
	}
}
