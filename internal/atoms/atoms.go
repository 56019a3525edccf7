// Package atoms declares the concrete boxes of MP4/M4A/M4B files and
// registers them with box.Default.
//
// Each declaration is a thin Payload over the box engine. Registration is
// context sensitive: an "alac" under stsd is a sample entry while an
// "alac" under that entry is its opaque decoder cookie, a "url " is only
// decoded under dref, and audio sample entries are only decoded when the
// enclosing track's handler is "soun".
package atoms

import (
	"context"

	"github.com/simonhull/atomtree/internal/box"
)

// Box types the rest of the module navigates by.
var (
	Ftyp = box.TypeOf("ftyp")
	Moov = box.TypeOf("moov")
	Mvhd = box.TypeOf("mvhd")
	Trak = box.TypeOf("trak")
	Mdia = box.TypeOf("mdia")
	Mdhd = box.TypeOf("mdhd")
	Hdlr = box.TypeOf("hdlr")
	Minf = box.TypeOf("minf")
	Dinf = box.TypeOf("dinf")
	Dref = box.TypeOf("dref")
	Stbl = box.TypeOf("stbl")
	Stsd = box.TypeOf("stsd")
	Stco = box.TypeOf("stco")
	Co64 = box.TypeOf("co64")
	Esds = box.TypeOf("esds")
	Udta = box.TypeOf("udta")
	Chpl = box.TypeOf("chpl")
	Meta = box.TypeOf("meta")
	Ilst = box.TypeOf("ilst")
	Data = box.TypeOf("data")
	Mean = box.TypeOf("mean")
	Name = box.TypeOf("name")
	Mdat = box.TypeOf("mdat")
	Free = box.TypeOf("free")
)

// Handler types.
var (
	HandlerSound    = box.TypeOf("soun")
	HandlerMetadata = box.TypeOf("mdir")
)

// containers lists plain containers by the parents they are decoded under.
var containers = map[string][]box.Type{
	"moov": {box.Root},
	"moof": {box.Root},
	"mfra": {box.Root},
	"trak": {Moov},
	"mvex": {Moov},
	"udta": {Moov, Trak},
	"edts": {Trak},
	"tref": {Trak},
	"mdia": {Trak},
	"minf": {Mdia},
	"dinf": {Minf},
	"stbl": {Minf},
	"traf": {box.TypeOf("moof")},
	"wave": {box.TypeOf("mp4a"), box.TypeOf(".mp3")},
	"sinf": {box.TypeOf("enca")},
	"schi": {box.TypeOf("sinf")},
	"ilst": {Meta},
}

func init() {
	Register(box.Default)
}

// Register declares every box of this package in r.
func Register(r *box.Registry) {
	for name, parents := range containers {
		for _, p := range parents {
			r.Register(box.TypeOf(name), p, box.Static(box.Container()))
		}
	}

	r.Register(Ftyp, box.Root, box.Static(box.Data(func() box.Payload { return &FileType{} })))
	r.Register(Mvhd, Moov, box.Static(box.FullData(func() box.Payload { return &MovieHeader{} })))
	r.Register(Mdhd, Mdia, box.Static(box.FullData(func() box.Payload { return &MediaHeader{} })))

	handler := box.Static(box.FullData(func() box.Payload { return &Handler{} }))
	for _, p := range []box.Type{Mdia, Minf, Meta} {
		r.Register(Hdlr, p, handler)
	}

	for _, p := range []box.Type{box.Root, Moov, Trak, Udta} {
		r.Register(Meta, p, newMeta)
	}

	r.Register(Dref, Dinf, box.Static(box.FullContainerWith(func() box.Payload { return &EntryCount{} })))
	r.Register(box.TypeOf("url "), Dref, box.Static(box.FullData(func() box.Payload { return &DataEntryURL{} })))
	r.Register(box.TypeOf("urn "), Dref, box.Static(box.FullData(func() box.Payload { return &DataEntryURN{} })))

	r.Register(Stsd, Stbl, box.Static(box.FullContainerWith(func() box.Payload { return &EntryCount{} })))
	for _, t := range AudioSampleEntryTypes {
		r.Register(t, Stsd, newAudioSampleEntry)
	}
	wave := box.TypeOf("wave")
	waveFormat := box.Static(box.Data(func() box.Payload { return &WaveFormat{} }))
	for _, t := range WaveFormatTypes {
		r.Register(wave, t, box.Static(box.Container()))
		r.Register(t, wave, waveFormat)
	}
	r.RegisterAny(Esds, box.Static(box.FullData(func() box.Payload { return &ESDS{} })))

	r.Register(Stco, Stbl, box.Static(box.FullData(func() box.Payload { return &ChunkOffsets{} })))
	r.Register(Co64, Stbl, box.Static(box.FullData(func() box.Payload { return &ChunkOffsets64{} })))

	r.Register(Chpl, Udta, box.Static(box.FullData(func() box.Payload { return &ChapterList{} })))

	registerItems(r)
}

// newMeta distinguishes the ISO meta box, a full box, from the QuickTime
// form whose first child starts right after the header.
func newMeta(ctx context.Context, p *box.Candidate) (box.Variant, error) {
	peek, err := p.Peek(ctx, 8)
	if err != nil {
		return box.Variant{}, err
	}
	if len(peek) == 8 && box.Type(peek[4:8]) == Hdlr {
		return box.Container(), nil
	}
	return box.FullContainer(), nil
}
