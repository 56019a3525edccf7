package types

import "fmt"

// Artwork is an embedded cover image.
//
// MP4 files store cover art as data atoms under ilst/covr; one file may
// carry several images.
type Artwork struct {
	// MIME type of the image data
	MIMEType string // "image/jpeg", "image/png", "image/bmp"

	// Image binary data
	Data []byte

	// Dimensions (if the image header could be read, otherwise 0)
	Width  int // Pixels
	Height int // Pixels
}

// String returns a human-readable description of the artwork.
//
// Example output: "1200x1200 JPEG, 245KB"
func (a Artwork) String() string {
	dims := ""
	if a.Width > 0 && a.Height > 0 {
		dims = fmt.Sprintf("%dx%d ", a.Width, a.Height)
	}
	return fmt.Sprintf("%s%s, %s", dims, mimeToFormat(a.MIMEType), formatSize(len(a.Data)))
}

var imageFormats = map[string]string{
	"image/jpeg": "JPEG",
	"image/png":  "PNG",
	"image/bmp":  "BMP",
}

func mimeToFormat(mime string) string {
	if f, ok := imageFormats[mime]; ok {
		return f
	}
	return "Image"
}

// formatSize renders n as B, KB (truncated) or MB (one decimal).
func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%dKB", n>>10)
	}
	return fmt.Sprintf("%dB", n)
}
