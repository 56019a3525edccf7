package atomtree

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/simonhull/atomtree/internal/atoms"
	"github.com/simonhull/atomtree/internal/box"
	"github.com/simonhull/atomtree/internal/fileio"
	"github.com/simonhull/atomtree/internal/types"
)

// Document is an opened MP4 file and its parsed box tree.
//
// Opening reads the box headers and decodes the payloads of known boxes;
// media data is never read into memory. Edits made through the views
// (SetChapters, SetTag) change only the tree until Save writes them back.
//
// Always call Close() when done to release file resources:
//
//	doc, err := atomtree.Open(ctx, "book.m4b")
//	if err != nil {
//		return err
//	}
//	defer doc.Close()
//
// A Document is not safe for concurrent use.
type Document struct {
	// Path of the source file, or the name given to OpenBytes.
	Path string

	file     *fileio.File
	tree     *box.Tree
	options  *openOptions
	warnings []Warning
}

// Registry is an alias to box.Registry.
type Registry = box.Registry

// NewRegistry returns a registry holding every box this package knows,
// ready for further registrations before it is passed to WithRegistry.
func NewRegistry() *Registry {
	r := box.NewRegistry()
	atoms.Register(r)
	return r
}

// Open opens an MP4 file and parses its box tree.
//
// The file is opened read-only; Save switches it to read-write for the
// duration of the write.
//
// If a nested box is malformed, Open returns a Document in which the
// enclosing box is kept as opaque bytes, with a warning. Check
// Document.Warnings for details, or use WithStrictParsing.
//
// Example:
//
//	doc, err := atomtree.Open(ctx, "book.m4b")
//	if err != nil {
//		return err
//	}
//	defer doc.Close()
//	for _, ch := range doc.Chapters() {
//		fmt.Println(ch.StartTime, ch.Title)
//	}
func Open(ctx context.Context, path string, opts ...Option) (*Document, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	f, err := fileio.Open(ctx, path, types.Read, options.fileOptions()...)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return openFile(ctx, f, path, options)
}

// OpenBytes parses data held in memory. Saving writes back into the
// in-memory copy; use Render or SaveAs to get the bytes out.
func OpenBytes(ctx context.Context, name string, data []byte, opts ...Option) (*Document, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	f := fileio.NewMemory(name, data, types.Read, options.fileOptions()...)
	return openFile(ctx, f, name, options)
}

func openFile(ctx context.Context, f *fileio.File, path string, options *openOptions) (*Document, error) {
	tree, err := box.Parse(ctx, f, options.treeOptions())
	if err != nil {
		f.Close() //nolint:errcheck // Already failing
		return nil, err
	}

	doc := &Document{
		Path:     path,
		file:     f,
		tree:     tree,
		options:  options,
		warnings: tree.Warnings(),
	}

	// Check strict parsing mode
	if options.strictParsing && len(doc.warnings) > 0 {
		f.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("strict parsing failed: %s", doc.warnings[0])
	}

	// Apply option: ignore warnings
	if options.ignoreWarnings {
		doc.warnings = nil
	}
	return doc, nil
}

// Close releases resources held by the document.
//
// After Close is called, the Document should not be used.
func (d *Document) Close() error {
	return d.file.Close()
}

// Warnings returns the non-fatal issues found while parsing.
func (d *Document) Warnings() []Warning {
	return d.warnings
}

// Size returns the current length of the underlying file.
func (d *Document) Size() int64 {
	return d.file.Length()
}

// Dump writes an indented listing of the box tree to w.
func (d *Document) Dump(w io.Writer) error {
	return d.tree.Dump(w)
}

// Outline returns a structural summary of the box tree, suitable for YAML
// or CBOR export.
func (d *Document) Outline() ([]Outline, error) {
	return d.tree.Outline()
}

// Render writes the whole file as it would be saved, without touching the
// source.
func (d *Document) Render(ctx context.Context, w io.Writer) (int64, error) {
	return d.tree.Render(ctx, w)
}

// Digest returns the BLAKE3-256 digest of the rendered tree.
func (d *Document) Digest(ctx context.Context) ([]byte, error) {
	h := blake3.New()
	if _, err := d.tree.Render(ctx, h); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// SourceDigest returns the BLAKE3-256 digest of the bytes currently in the
// underlying file. For an unmodified document it equals Digest.
func (d *Document) SourceDigest(ctx context.Context) ([]byte, error) {
	h := blake3.New()
	chunk := int64(d.file.BufferSize())
	for off := int64(0); off < d.file.Length(); off += chunk {
		b, err := d.file.ReadAt(ctx, off, int(min(chunk, d.file.Length()-off)))
		if err != nil {
			return nil, err
		}
		h.Write(b) //nolint:errcheck // hash.Hash never fails
	}
	return h.Sum(nil), nil
}

// OpenMany opens multiple files concurrently.
//
// Files are parsed in parallel using up to runtime.NumCPU() goroutines.
// Results are returned in the same order as the input paths. Every
// document is opened with opts.
//
// If any file fails to open, all successfully opened files are closed
// and an error is returned.
//
// Example:
//
//	docs, err := atomtree.OpenMany(ctx, paths, atomtree.WithIgnoreWarnings())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer func() {
//		for _, d := range docs {
//			d.Close()
//		}
//	}()
func OpenMany(ctx context.Context, paths []string, opts ...Option) ([]*Document, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	results := make([]*Document, len(paths))

	for i, path := range paths {
		g.Go(func() error {
			// Check for cancellation
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			doc, err := Open(ctx, path, opts...)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			results[i] = doc
			return nil
		})
	}

	// Wait for all to complete
	if err := g.Wait(); err != nil {
		// Close any successfully opened files
		for _, doc := range results {
			if doc != nil {
				doc.Close() //nolint:errcheck // Best effort cleanup
			}
		}
		return nil, err
	}

	return results, nil
}
