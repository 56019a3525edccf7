package types

import "testing"

func TestArtwork_String(t *testing.T) {
	tests := []struct {
		name string
		art  Artwork
		want string
	}{
		{"jpeg with size", Artwork{MIMEType: "image/jpeg", Data: make([]byte, 245*1024), Width: 1200, Height: 1200}, "1200x1200 JPEG, 245KB"},
		{"png no dims", Artwork{MIMEType: "image/png", Data: make([]byte, 100)}, "PNG, 100B"},
		{"large bmp", Artwork{MIMEType: "image/bmp", Data: make([]byte, 3*1024*1024/2)}, "BMP, 1.5MB"},
		{"unknown", Artwork{MIMEType: "image/heic"}, "Image, 0B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.art.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
