// Package atomtree reads, edits and rewrites ISO base media files (MP4,
// M4A, M4B, MOV) as a tree of boxes.
//
// # Quick Start
//
// Reading the chapters of an audiobook:
//
//	doc, err := atomtree.Open(ctx, "book.m4b")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer doc.Close()
//
//	for _, ch := range doc.Chapters() {
//		fmt.Printf("%s %s\n", ch.StartTime, ch.Title)
//	}
//
// Changing a tag and saving in place:
//
//	if err := doc.SetTag("title", "New Title"); err != nil {
//		log.Fatal(err)
//	}
//	if err := doc.Save(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Architecture
//
// The library uses a layered architecture:
//
//	[Document]             - Entry point with Open()
//	  ├─ box tree          - Every box, known or not, with its byte range
//	  │   ├─ payloads      - Decoded fields of known boxes
//	  │   └─ opaque boxes  - Kept as bytes, streamed on save
//	  └─ random-access file - Insert/remove with tail shifting
//
// Boxes are resolved through a registry keyed by (type, parent type).
// Unknown boxes stay opaque and are preserved byte for byte. Every decoded
// payload is checked to re-encode to the bytes it came from; a box that
// does not is kept opaque (see WithRoundTripPolicy).
//
// # Saving
//
// Save writes only what changed: a grown or shrunk box shifts the bytes
// after it, every enclosing header is rewritten with its new size, and
// stco/co64 chunk offsets are moved along with the media data. SaveAs
// renders the whole tree to a temporary file and renames it into place.
//
// # Error Handling
//
// atomtree distinguishes between fatal errors and warnings:
//
//   - Fatal errors prevent parsing entirely (file not found, a malformed
//     top-level box)
//   - Warnings indicate non-fatal issues (a malformed nested box, a
//     payload that does not round-trip)
//
// Typed errors (OutOfBoundsError, AccessModeError, MalformedBoxError,
// RoundTripError) can be matched with errors.As.
package atomtree
