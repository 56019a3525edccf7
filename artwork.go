package atomtree

import (
	"bytes"
	"errors"
	"image"
	_ "image/jpeg" // Register JPEG for DecodeConfig
	_ "image/png"  // Register PNG for DecodeConfig

	_ "golang.org/x/image/bmp" // Register BMP for DecodeConfig

	"github.com/simonhull/atomtree/internal/atoms"
	"github.com/simonhull/atomtree/internal/box"
	"github.com/simonhull/atomtree/internal/types"
)

// Artwork is an alias to types.Artwork.
// Re-exporting from internal/types to maintain public API.
type Artwork = types.Artwork

var errUnknownImage = errors.New("image is not JPEG, PNG or BMP")

// Artwork returns the cover images stored in moov/udta/meta/ilst/covr, in
// file order. Data atoms that are not images are skipped.
func (d *Document) Artwork() []Artwork {
	covr, ok := d.tree.Find(box.RootID, atoms.Moov, atoms.Udta, atoms.Meta, atoms.Ilst, coverItem)
	if !ok {
		return nil
	}

	var artwork []Artwork
	for _, c := range d.tree.Children(covr) {
		p, ok := d.tree.Payload(c).(*atoms.BinaryData)
		if !ok || p.MIMEType() == "" {
			continue
		}
		a := Artwork{MIMEType: p.MIMEType(), Data: p.Value}
		// Graceful degradation: keep the image even when its header is unreadable
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(p.Value)); err == nil {
			a.Width, a.Height = cfg.Width, cfg.Height
		}
		artwork = append(artwork, a)
	}
	return artwork
}

// SetArtwork replaces the cover images. Each image must be JPEG, PNG or
// BMP; the data type is detected from its bytes. Calling it with no images
// removes the covr item.
func (d *Document) SetArtwork(images ...[]byte) error {
	payloads := make([]*atoms.BinaryData, len(images))
	for i, img := range images {
		typ, err := imageDataType(img)
		if err != nil {
			return err
		}
		payloads[i] = &atoms.BinaryData{DataHeader: atoms.DataHeader{Type: typ}, Value: img}
	}

	ilst, found := d.tree.Find(box.RootID, atoms.Moov, atoms.Udta, atoms.Meta, atoms.Ilst)
	if len(images) == 0 {
		if !found {
			return nil
		}
		if covr, ok := d.tree.Find(ilst, coverItem); ok {
			return d.tree.Remove(covr)
		}
		return nil
	}

	var err error
	if !found {
		if ilst, err = d.createItemList(); err != nil {
			return err
		}
	}
	covr, ok := d.tree.Find(ilst, coverItem)
	if ok {
		for _, c := range d.tree.Children(covr) {
			if err := d.tree.Remove(c); err != nil {
				return err
			}
		}
	} else if covr, err = d.tree.Append(ilst, coverItem, box.Container()); err != nil {
		return err
	}

	for _, p := range payloads {
		if _, err := d.tree.Append(covr, atoms.Data, box.Data(func() box.Payload { return p })); err != nil {
			return err
		}
	}
	return nil
}

// imageDataType returns the data atom type indicator for an image.
func imageDataType(img []byte) (uint32, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return 0, errUnknownImage
	}
	switch format {
	case "jpeg":
		return atoms.DataTypeJPEG, nil
	case "png":
		return atoms.DataTypePNG, nil
	case "bmp":
		return atoms.DataTypeBMP, nil
	}
	return 0, errUnknownImage
}
