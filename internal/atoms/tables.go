package atoms

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/simonhull/atomtree/internal/binary"
	"github.com/simonhull/atomtree/internal/box"
)

// EntryCount is the fixed field of stsd and dref: the number of entry
// boxes that follow.
type EntryCount struct {
	Count uint32
}

func (p *EntryCount) Decode(r *binary.Reader, _ box.FullHeader) error {
	var err error
	p.Count, err = binary.ReadValue[uint32](r, "reading entry count")
	return err
}

func (p *EntryCount) Encode(b *binary.Builder, _ box.FullHeader) error {
	binary.Write(b, p.Count)
	return nil
}

func (p *EntryCount) SetChildCount(n int) { p.Count = uint32(n) }

func (p *EntryCount) String() string { return fmt.Sprintf("entries=%d", p.Count) }

// SelfContained is the data entry flag meaning the media is in this file.
const SelfContained = 0x000001

// DataEntryURL is a "url " data reference. Self-contained entries carry
// no location.
type DataEntryURL struct {
	Location []byte // NUL-terminated when present
}

func (p *DataEntryURL) Decode(r *binary.Reader, _ box.FullHeader) error {
	p.Location = r.Rest()
	return nil
}

func (p *DataEntryURL) Encode(b *binary.Builder, _ box.FullHeader) error {
	b.WriteBytes(p.Location)
	return nil
}

// DataEntryURN is a "urn " data reference: a NUL-terminated name followed
// by an optional location.
type DataEntryURN struct {
	Name     string
	Location []byte
}

func (p *DataEntryURN) Decode(r *binary.Reader, _ box.FullHeader) error {
	rest := r.Rest()
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return fmt.Errorf("urn name is not NUL-terminated")
	}
	p.Name, p.Location = string(rest[:i]), rest[i+1:]
	return nil
}

func (p *DataEntryURN) Encode(b *binary.Builder, _ box.FullHeader) error {
	b.WriteString(p.Name)
	b.WriteZeros(1)
	b.WriteBytes(p.Location)
	return nil
}

// ChunkOffsets is the stco table of 32-bit absolute chunk offsets.
type ChunkOffsets struct {
	Offsets []uint32
}

func (p *ChunkOffsets) Decode(r *binary.Reader, _ box.FullHeader) error {
	n, err := binary.ReadValue[uint32](r, "reading entry count")
	if err != nil {
		return err
	}
	if int64(n)*4 > int64(r.Remaining()) {
		return fmt.Errorf("%d entries need %d bytes, %d left", n, int64(n)*4, r.Remaining())
	}
	p.Offsets = make([]uint32, n)
	for i := range p.Offsets {
		p.Offsets[i], _ = binary.ReadValue[uint32](r, "reading chunk offset")
	}
	return nil
}

func (p *ChunkOffsets) Encode(b *binary.Builder, _ box.FullHeader) error {
	binary.Write(b, uint32(len(p.Offsets)))
	for _, o := range p.Offsets {
		binary.Write(b, o)
	}
	return nil
}

// AdjustOffsets maps every entry through shift. An entry that no longer
// fits in 32 bits fails the save; the table needs converting to co64.
func (p *ChunkOffsets) AdjustOffsets(shift func(uint64) uint64) error {
	for i, o := range p.Offsets {
		moved := shift(uint64(o))
		if moved > math.MaxUint32 {
			return fmt.Errorf("chunk %d offset %d overflows 32 bits", i, moved)
		}
		p.Offsets[i] = uint32(moved)
	}
	return nil
}

func (p *ChunkOffsets) String() string { return fmt.Sprintf("chunks=%d", len(p.Offsets)) }

// ChunkOffsets64 is the co64 table.
type ChunkOffsets64 struct {
	Offsets []uint64
}

func (p *ChunkOffsets64) Decode(r *binary.Reader, _ box.FullHeader) error {
	n, err := binary.ReadValue[uint32](r, "reading entry count")
	if err != nil {
		return err
	}
	if int64(n)*8 > int64(r.Remaining()) {
		return fmt.Errorf("%d entries need %d bytes, %d left", n, int64(n)*8, r.Remaining())
	}
	p.Offsets = make([]uint64, n)
	for i := range p.Offsets {
		p.Offsets[i], _ = binary.ReadValue[uint64](r, "reading chunk offset")
	}
	return nil
}

func (p *ChunkOffsets64) Encode(b *binary.Builder, _ box.FullHeader) error {
	binary.Write(b, uint32(len(p.Offsets)))
	for _, o := range p.Offsets {
		binary.Write(b, o)
	}
	return nil
}

func (p *ChunkOffsets64) AdjustOffsets(shift func(uint64) uint64) error {
	for i, o := range p.Offsets {
		p.Offsets[i] = shift(o)
	}
	return nil
}

func (p *ChunkOffsets64) String() string { return fmt.Sprintf("chunks=%d", len(p.Offsets)) }

// ChapterTick is the unit of chapter start times: 100 nanoseconds.
const ChapterTick = 100 * time.Nanosecond

// ChapterMark is one entry of a chapter list.
type ChapterMark struct {
	Start uint64 // in ChapterTick units
	Title string
}

// StartTime returns the start as a duration.
func (m ChapterMark) StartTime() time.Duration {
	return time.Duration(m.Start) * ChapterTick
}

// ChapterList is the Nero chpl box: an optional reserved word in version
// 1, a one-byte count, then (start, title) pairs with one-byte title
// lengths.
type ChapterList struct {
	Reserved uint32
	Chapters []ChapterMark
}

func (p *ChapterList) Decode(r *binary.Reader, h box.FullHeader) error {
	var err error
	if h.Version == 1 {
		if p.Reserved, err = binary.ReadValue[uint32](r, "reading reserved"); err != nil {
			return err
		}
	}
	count, err := binary.ReadValue[uint8](r, "reading chapter count")
	if err != nil {
		return err
	}

	cr := binary.NewChainReader(r)
	p.Chapters = make([]ChapterMark, 0, count)
	for range count {
		var m ChapterMark
		m.Start = binary.ReadChained[uint64](cr, "reading chapter start time")
		titleLen := binary.ReadChained[uint8](cr, "reading chapter title length")
		m.Title = cr.String(int(titleLen), "reading chapter title")
		if err := cr.Error(); err != nil {
			return err
		}
		p.Chapters = append(p.Chapters, m)
	}
	return nil
}

func (p *ChapterList) Encode(b *binary.Builder, h box.FullHeader) error {
	if len(p.Chapters) > math.MaxUint8 {
		return fmt.Errorf("%d chapters exceed the limit of %d", len(p.Chapters), math.MaxUint8)
	}
	if h.Version == 1 {
		binary.Write(b, p.Reserved)
	}
	binary.Write(b, uint8(len(p.Chapters)))
	for i, m := range p.Chapters {
		if len(m.Title) > math.MaxUint8 {
			return fmt.Errorf("chapter %d: title of %d bytes exceeds %d", i+1, len(m.Title), math.MaxUint8)
		}
		binary.Write(b, m.Start)
		binary.Write(b, uint8(len(m.Title)))
		b.WriteString(m.Title)
	}
	return nil
}

func (p *ChapterList) String() string { return fmt.Sprintf("chapters=%d", len(p.Chapters)) }
