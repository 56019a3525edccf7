package atoms

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/box"
)

func TestParse_SampleFile(t *testing.T) {
	data := sampleFile("soun")
	tree, _ := parse(t, data)

	if w := tree.Warnings(); len(w) != 0 {
		t.Fatalf("unexpected warnings: %v", w)
	}

	ftyp := tree.Payload(mustFind(t, tree, "ftyp")).(*FileType)
	if ftyp.MajorBrand != box.TypeOf("M4A ") || len(ftyp.CompatibleBrands) != 3 {
		t.Errorf("ftyp = %s", ftyp)
	}

	mvhd := tree.Payload(mustFind(t, tree, "moov", "mvhd")).(*MovieHeader)
	if mvhd.Length() != 10*time.Second || mvhd.NextTrackID != 2 {
		t.Errorf("mvhd = %s next=%d", mvhd, mvhd.NextTrackID)
	}

	mdhd := tree.Payload(mustFind(t, tree, "moov", "trak", "mdia", "mdhd")).(*MediaHeader)
	if mdhd.Language != "eng" || mdhd.Length() != 10*time.Second {
		t.Errorf("mdhd = %s", mdhd)
	}

	entry := mustFind(t, tree, "moov", "trak", "mdia", "minf", "stbl", "stsd", "mp4a")
	if tree.Kind(entry) != box.KindContainer {
		t.Fatalf("mp4a kind = %s, want container", tree.Kind(entry))
	}
	ase := tree.Payload(entry).(*AudioSampleEntry)
	if ase.Rate() != 44100 || ase.ChannelCount() != 2 || ase.BitDepth() != 16 {
		t.Errorf("mp4a = %s", ase)
	}

	esds := tree.Payload(mustFind(t, tree, "moov", "trak", "mdia", "minf", "stbl", "stsd", "mp4a", "esds")).(*ESDS)
	ac, err := esds.AudioConfig()
	if err != nil {
		t.Fatalf("AudioConfig: %v", err)
	}
	if ac.Profile() != "AAC-LC" || ac.SampleRate != 44100 || ac.ChannelConfig != 2 {
		t.Errorf("audio config = %+v", ac)
	}
	if dc, ok := esds.DecoderConfig(); !ok || dc.AvgBitrate != 128000 {
		t.Errorf("DecoderConfig() = %+v, %v", dc, ok)
	}

	stsd := tree.Payload(mustFind(t, tree, "moov", "trak", "mdia", "minf", "stbl", "stsd")).(*EntryCount)
	if stsd.Count != 1 {
		t.Errorf("stsd count = %d", stsd.Count)
	}

	chpl := tree.Payload(mustFind(t, tree, "moov", "udta", "chpl")).(*ChapterList)
	if len(chpl.Chapters) != 2 || chpl.Chapters[1].Title != "Café" || chpl.Chapters[1].StartTime() != 5*time.Second {
		t.Errorf("chpl = %+v", chpl.Chapters)
	}

	if k := tree.Kind(mustFind(t, tree, "moov", "udta", "meta")); k != box.KindContainer {
		t.Errorf("meta kind = %s", k)
	}
	title := tree.Payload(mustFind(t, tree, "moov", "udta", "meta", "ilst", "©nam", "data")).(*TextData)
	if title.Value != "Title" {
		t.Errorf("©nam = %q", title.Value)
	}
	tmpo := tree.Payload(mustFind(t, tree, "moov", "udta", "meta", "ilst", "tmpo", "data")).(*IntData)
	if tmpo.Int() != -123 || tmpo.Width != 2 {
		t.Errorf("tmpo = %d (width %d)", tmpo.Int(), tmpo.Width)
	}

	var buf bytes.Buffer
	if _, err := tree.Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Error("Render() does not reproduce the file")
	}

	out := dump(t, tree)
	for _, want := range []string{"profile=AAC-LC", "language=eng", "chapters=2", `"Title"`, "[v1 flags=000000]"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump lacks %q:\n%s", want, out)
		}
	}
}

func TestSampleEntry_RequiresSoundHandler(t *testing.T) {
	tree, _ := parse(t, sampleFile("vide"))

	entry := mustFind(t, tree, "moov", "trak", "mdia", "minf", "stbl", "stsd", "mp4a")
	if tree.Kind(entry) != box.KindOpaque {
		t.Errorf("mp4a in a video track: kind = %s, want opaque", tree.Kind(entry))
	}
	if len(tree.Children(entry)) != 0 {
		t.Error("opaque sample entry should have no children")
	}
}

func TestSampleEntry_DataHandlerIgnored(t *testing.T) {
	// QuickTime minf carries its own hdlr naming the data handler; the
	// media handler in mdia must still win.
	mp4a := atom("mp4a", audioEntry(1, 16, 22050))
	dhlr := fullAtom("hdlr", 0, 0, []byte("dhlr"), []byte("alis"), zeros(12), []byte{0})
	minf := atom("minf", dhlr, atom("stbl", fullAtom("stsd", 0, 0, u32(1), mp4a)))
	trak := atom("trak", atom("mdia", hdlrAtom("soun", ""), minf))
	tree, _ := parse(t, atom("moov", trak))

	entry := mustFind(t, tree, "moov", "trak", "mdia", "minf", "stbl", "stsd", "mp4a")
	ase, ok := tree.Payload(entry).(*AudioSampleEntry)
	if !ok {
		t.Fatalf("mp4a not decoded:\n%s", dump(t, tree))
	}
	if ase.Rate() != 22050 || ase.ChannelCount() != 1 {
		t.Errorf("mp4a = %s", ase)
	}
}

func TestSampleEntry_NestedCookieStaysOpaque(t *testing.T) {
	cookie := fullAtom("alac", 0, 0, bytes.Repeat([]byte{0xAB}, 24))
	alac := atom("alac", audioEntry(2, 24, 48000), cookie)
	trak := atom("trak", atom("mdia", hdlrAtom("soun", ""),
		atom("minf", atom("stbl", fullAtom("stsd", 0, 0, u32(1), alac)))))
	tree, _ := parse(t, atom("moov", trak))

	outer := mustFind(t, tree, "moov", "trak", "mdia", "minf", "stbl", "stsd", "alac")
	if tree.Kind(outer) != box.KindContainer {
		t.Fatalf("alac entry kind = %s", tree.Kind(outer))
	}
	if got := tree.Payload(outer).(*AudioSampleEntry).BitDepth(); got != 24 {
		t.Errorf("BitDepth() = %d, want 24", got)
	}
	inner := mustFind(t, tree, "moov", "trak", "mdia", "minf", "stbl", "stsd", "alac", "alac")
	if tree.Kind(inner) != box.KindOpaque {
		t.Errorf("alac cookie kind = %s, want opaque", tree.Kind(inner))
	}
}

func TestSampleEntry_QuickTimeVersions(t *testing.T) {
	tests := []struct {
		name     string
		fields   []byte
		rate     int
		channels int
		bits     int
	}{
		{
			name: "version 1",
			fields: cat(zeros(6), u16(1), u16(1), u16(0), u32(0), u16(2), u16(16), u16(0xFFFE), u16(0), u32(44100<<16),
				u32(1024), u32(0), u32(4), u32(2)),
			rate: 44100, channels: 2, bits: 16,
		},
		{
			name: "version 2",
			fields: cat(zeros(6), u16(1), u16(2), u16(0), u32(0), u16(3), u16(16), u16(0xFFFE), u16(0), u32(0x00010000),
				u32(72), u64(0x40F7700000000000), u32(6), u32(0x7F000000), u32(24), u32(0), u32(0), u32(1)),
			rate: 96000, channels: 6, bits: 24,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p AudioSampleEntry
			if err := p.Decode(binary.NewReader(tt.fields, "test"), box.FullHeader{}); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if p.Rate() != tt.rate || p.ChannelCount() != tt.channels || p.BitDepth() != tt.bits {
				t.Errorf("got %s", &p)
			}
			b := binary.NewBuilder(len(tt.fields))
			if err := p.Encode(b, box.FullHeader{}); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(b.Bytes(), tt.fields) {
				t.Errorf("Encode() = % x\nwant       % x", b.Bytes(), tt.fields)
			}
		})
	}

	bad := AudioSampleEntry{Version: 1}
	if err := bad.Encode(binary.NewBuilder(0), box.FullHeader{}); err == nil {
		t.Error("version 1 without V1 fields should fail to encode")
	}
	unknown := cat(zeros(6), u16(1), u16(3), zeros(20))
	if err := new(AudioSampleEntry).Decode(binary.NewReader(unknown, "test"), box.FullHeader{}); err == nil {
		t.Error("version 3 should fail to decode")
	}
}

func TestDataReference_OnlyUnderDref(t *testing.T) {
	loc := fullAtom("url ", 0, 0, []byte("file:///media.mov\x00"))
	urn := fullAtom("urn ", 0, 0, []byte("urn:x\x00loc\x00"))
	dinf := atom("dinf", fullAtom("dref", 0, 0, u32(2), loc, urn))
	stray := atom("udta", fullAtom("url ", 0, 0, []byte("x\x00")))
	trak := atom("trak", atom("mdia", atom("minf", dinf)), stray)
	tree, _ := parse(t, atom("moov", trak))

	url := tree.Payload(mustFind(t, tree, "moov", "trak", "mdia", "minf", "dinf", "dref", "url ")).(*DataEntryURL)
	if string(url.Location) != "file:///media.mov\x00" {
		t.Errorf("url location = %q", url.Location)
	}
	u := tree.Payload(mustFind(t, tree, "moov", "trak", "mdia", "minf", "dinf", "dref", "urn ")).(*DataEntryURN)
	if u.Name != "urn:x" || string(u.Location) != "loc\x00" {
		t.Errorf("urn = %q %q", u.Name, u.Location)
	}
	if k := tree.Kind(mustFind(t, tree, "moov", "trak", "udta", "url ")); k != box.KindOpaque {
		t.Errorf("url outside dref: kind = %s, want opaque", k)
	}

	var p DataEntryURN
	if err := p.Decode(binary.NewReader([]byte("no terminator"), "test"), box.FullHeader{}); err == nil {
		t.Error("urn without NUL should fail")
	}
}

func TestMeta_BothForms(t *testing.T) {
	ilst := atom("ilst", atom("©ART", dataAtom(DataTypeUTF8, []byte("Artist"))))
	tests := []struct {
		name string
		meta []byte
		full bool
	}{
		{"iso full box", fullAtom("meta", 0, 0, hdlrAtom("mdir", ""), ilst), true},
		{"quicktime", atom("meta", hdlrAtom("mdir", ""), ilst), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, _ := parse(t, atom("moov", atom("udta", tt.meta)))
			meta := mustFind(t, tree, "moov", "udta", "meta")
			if tree.Kind(meta) != box.KindContainer {
				t.Fatalf("meta kind = %s", tree.Kind(meta))
			}
			out := dump(t, tree)
			if got := strings.Contains(out, "meta (size: "+strconv.Itoa(len(tt.meta))+", offset: 16) [v0"); got != tt.full {
				t.Errorf("full-box rendering = %v, want %v:\n%s", got, tt.full, out)
			}
			artist := tree.Payload(mustFind(t, tree, "moov", "udta", "meta", "ilst", "©ART", "data")).(*TextData)
			if artist.Value != "Artist" {
				t.Errorf("©ART = %q", artist.Value)
			}
			h := tree.Payload(mustFind(t, tree, "moov", "udta", "meta", "hdlr")).(*Handler)
			if h.HandlerType() != HandlerMetadata {
				t.Errorf("meta handler = %s", h.HandlerType())
			}
		})
	}
}
