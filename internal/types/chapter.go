package types

import "time"

// Chapter represents a chapter marker in an MP4/M4B file.
//
// Chapters are read from and written to the Nero chapter list (chpl)
// under moov/udta:
//
//	doc, _ := atomtree.Open(ctx, "audiobook.m4b")
//	for _, chapter := range doc.Chapters() {
//	    fmt.Printf("[%d] %s: %s - %s\n",
//	        chapter.Index,
//	        chapter.Title,
//	        chapter.StartTime,
//	        chapter.EndTime)
//	}
type Chapter struct {
	Index     int           `json:"index" yaml:"index"`
	Title     string        `json:"title" yaml:"title"`
	StartTime time.Duration `json:"start_time" yaml:"start_time"`
	EndTime   time.Duration `json:"end_time" yaml:"end_time"`
}
