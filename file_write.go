package atomtree

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/simonhull/atomtree/internal/atoms"
	"github.com/simonhull/atomtree/internal/box"
)

// Save writes every change back to the source in place.
//
// Only changed boxes are rewritten: bytes after a grown or shrunk box are
// shifted, enclosing box sizes are updated and chunk offset tables are
// adjusted so they keep pointing at the media data. An interrupted Save
// can leave the file inconsistent; use SaveAs for an atomic write.
func (d *Document) Save(ctx context.Context) error {
	if err := d.tree.Save(ctx); err != nil {
		return fmt.Errorf("save %s: %w", d.Path, err)
	}
	return nil
}

// SaveAs writes the document to a new location.
//
// This is an atomic operation: the tree is rendered to a temporary file in
// the output directory, synced, and renamed over the output path. If any
// step fails, the partially written data is cleaned up and the source is
// untouched.
//
// Options can be provided to customize save behavior:
//
//	err := doc.SaveAs(ctx, "/new/path/book.m4b",
//	    atomtree.WithBackup(".bak"),
//	    atomtree.WithValidation(),
//	)
func (d *Document) SaveAs(ctx context.Context, outputPath string, opts ...SaveOption) error { //nolint:gocyclo // Atomic file operations require sequential steps
	options := defaultSaveOptions()
	for _, opt := range opts {
		opt(options)
	}

	// Get original file's mod time if we need to preserve it
	var origModTime os.FileInfo
	if options.preserveModTime {
		info, err := os.Stat(d.Path)
		if err == nil {
			origModTime = info
		}
	}

	// Create temp file in same directory as output (for atomic rename)
	tempFile, err := os.CreateTemp(filepath.Dir(outputPath), ".atomtree-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	// Ensure cleanup on any error
	success := false
	defer func() {
		if !success {
			_ = tempFile.Close()    //nolint:errcheck // Best effort cleanup
			_ = os.Remove(tempPath) //nolint:errcheck // Best effort cleanup
		}
	}()

	if _, err := d.tree.Render(ctx, tempFile); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	// Sync temp file (fsync) to ensure data is on disk
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	// Close temp file before rename
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Handle backup option (rename original to .bak before replace)
	if options.backupSuffix != "" {
		backupPath := outputPath + options.backupSuffix
		if _, err := os.Stat(outputPath); err == nil {
			if err := os.Rename(outputPath, backupPath); err != nil {
				return fmt.Errorf("create backup: %w", err)
			}
		}
	}

	// Atomic rename temp -> output
	if err := os.Rename(tempPath, outputPath); err != nil {
		return fmt.Errorf("rename temp to output: %w", err)
	}

	// Mark success so defer doesn't clean up
	success = true

	if options.preserveModTime && origModTime != nil {
		_ = os.Chtimes(outputPath, origModTime.ModTime(), origModTime.ModTime()) //nolint:errcheck // Non-fatal: file was written successfully
	}

	if options.validate {
		if err := d.validateWrittenFile(ctx, outputPath); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	return nil
}

// validateWrittenFile re-opens the file, compares the digest of its
// re-rendered tree with the digest of this document's tree, and checks
// that every chunk offset lands in a media data box.
func (d *Document) validateWrittenFile(ctx context.Context, path string) error {
	want, err := d.Digest(ctx)
	if err != nil {
		return err
	}

	written, err := Open(ctx, path, WithRegistry(d.options.registry), WithRoundTripPolicy(d.options.roundTrip))
	if err != nil {
		return fmt.Errorf("re-open: %w", err)
	}
	defer written.Close() //nolint:errcheck // Best effort close

	got, err := written.Digest(ctx)
	if err != nil {
		return fmt.Errorf("re-render: %w", err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("digest mismatch: wrote %x, read back %x", want, got)
	}
	return written.checkChunkOffsets()
}

// checkChunkOffsets reports the first stco or co64 entry pointing outside
// every top-level mdat payload. Files without a top-level mdat are not
// checked.
func (d *Document) checkChunkOffsets() error {
	var media [][2]uint64
	for _, id := range d.tree.Children(box.RootID) {
		if d.tree.Type(id) == atoms.Mdat {
			h := d.tree.Header(id)
			media = append(media, [2]uint64{uint64(h.DataOffset()), uint64(h.End())})
		}
	}
	if len(media) == 0 {
		return nil
	}

	inMedia := func(off uint64) bool {
		for _, m := range media {
			if off >= m[0] && off <= m[1] {
				return true
			}
		}
		return false
	}
	for _, typ := range []box.Type{atoms.Stco, atoms.Co64} {
		for _, id := range d.tree.FindAll(typ) {
			var offsets []uint64
			switch p := d.tree.Payload(id).(type) {
			case *atoms.ChunkOffsets:
				for _, o := range p.Offsets {
					offsets = append(offsets, uint64(o))
				}
			case *atoms.ChunkOffsets64:
				offsets = p.Offsets
			}
			for i, o := range offsets {
				if !inMedia(o) {
					return fmt.Errorf("%s entry %d: offset %d is outside the media data", typ, i, o)
				}
			}
		}
	}
	return nil
}
