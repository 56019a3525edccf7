package atomtree

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/simonhull/atomtree/internal/atoms"
	"github.com/simonhull/atomtree/internal/box"
	"github.com/simonhull/atomtree/internal/types"
)

// Chapter is an alias to types.Chapter.
// Re-exporting from internal/types to maintain public API.
type Chapter = types.Chapter

var errNoMovie = errors.New("no moov box")

// Chapters returns the Nero chapter list (moov/udta/chpl).
//
// Each chapter ends where the next one starts; the last ends at the movie
// duration. Returns nil if the file has no chapter list.
func (d *Document) Chapters() []Chapter {
	id, ok := d.tree.Find(box.RootID, atoms.Moov, atoms.Udta, atoms.Chpl)
	if !ok {
		return nil
	}
	list, ok := d.tree.Payload(id).(*atoms.ChapterList)
	if !ok || len(list.Chapters) == 0 {
		return nil
	}

	chapters := make([]Chapter, len(list.Chapters))
	for i, m := range list.Chapters {
		chapters[i] = Chapter{
			Index:     i + 1,
			Title:     m.Title,
			StartTime: m.StartTime(),
		}
	}
	calculateChapterEndTimes(chapters, d.duration())
	return chapters
}

// calculateChapterEndTimes sets the EndTime for each chapter.
func calculateChapterEndTimes(chapters []Chapter, fileDuration time.Duration) {
	for i := range chapters {
		if i+1 < len(chapters) {
			chapters[i].EndTime = chapters[i+1].StartTime
		} else {
			// Last chapter ends at file duration
			chapters[i].EndTime = max(fileDuration, chapters[i].StartTime)
		}
	}
}

// duration is the movie duration from mvhd, or zero.
func (d *Document) duration() time.Duration {
	id, ok := d.tree.Find(box.RootID, atoms.Moov, atoms.Mvhd)
	if !ok {
		return 0
	}
	if mvhd, ok := d.tree.Payload(id).(*atoms.MovieHeader); ok {
		return mvhd.Length()
	}
	return 0
}

// SetChapters replaces the chapter list. Only Title and StartTime are
// stored; Index and EndTime are derived on read. An empty list removes the
// chpl box. The change is written by Save or SaveAs.
//
// The chpl box is created under moov/udta if it does not exist. Titles are
// limited to 255 bytes and the list to 255 chapters.
func (d *Document) SetChapters(chapters []Chapter) error {
	if len(chapters) > math.MaxUint8 {
		return fmt.Errorf("%d chapters exceed the limit of %d", len(chapters), math.MaxUint8)
	}
	marks := make([]atoms.ChapterMark, len(chapters))
	for i, c := range chapters {
		if len(c.Title) > math.MaxUint8 {
			return fmt.Errorf("chapter %d: title of %d bytes exceeds %d", i+1, len(c.Title), math.MaxUint8)
		}
		if c.StartTime < 0 {
			return fmt.Errorf("chapter %d: negative start time %s", i+1, c.StartTime)
		}
		marks[i] = atoms.ChapterMark{Start: uint64(c.StartTime / atoms.ChapterTick), Title: c.Title}
	}

	id, found := d.tree.Find(box.RootID, atoms.Moov, atoms.Udta, atoms.Chpl)
	if len(marks) == 0 {
		if found {
			return d.tree.Remove(id)
		}
		return nil
	}

	if found {
		if list, ok := d.tree.Payload(id).(*atoms.ChapterList); ok {
			list.Chapters = marks
			return nil
		}
		// An undecodable chpl is replaced.
		if err := d.tree.Remove(id); err != nil {
			return err
		}
	}

	udta, err := d.ensure(atoms.Moov, atoms.Udta)
	if err != nil {
		return err
	}
	id, err = d.tree.Append(udta, atoms.Chpl, box.FullData(func() box.Payload { return &atoms.ChapterList{} }))
	if err != nil {
		return err
	}
	if err := d.tree.SetFull(id, box.FullHeader{Version: 1}); err != nil {
		return err
	}
	d.tree.Payload(id).(*atoms.ChapterList).Chapters = marks
	return nil
}

// ensure walks path from the root, appending plain containers for missing
// boxes below moov. A missing moov is an error.
func (d *Document) ensure(path ...box.Type) (box.NodeID, error) {
	id := box.RootID
	for i, typ := range path {
		next, ok := d.tree.Find(id, typ)
		if !ok {
			if i == 0 {
				return box.None, errNoMovie
			}
			var err error
			if next, err = d.tree.Append(id, typ, box.Container()); err != nil {
				return box.None, err
			}
		}
		id = next
	}
	return id, nil
}
