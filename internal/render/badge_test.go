package render

import (
	"bytes"
	"image/png"
	"testing"
)

// assertPNG verifies the body decodes as a PNG of the expected size.
func assertPNG(t *testing.T, body []byte, size int) {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != size || b.Dy() != size {
		t.Fatalf("unexpected badge size %dx%d, want %d", b.Dx(), b.Dy(), size)
	}
}

func TestRenderBadge(t *testing.T) {
	r := NewBadgeRenderer(Config{BadgeSize: 24})

	tests := []struct {
		name       string
		count      int
		multiscale bool
	}{
		{"empty", 0, false},
		{"single", 1, false},
		{"multiscale", 3, true},
		{"overflow", 250, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := r.RenderBadge(tt.count, tt.multiscale)
			if err != nil {
				t.Fatalf("RenderBadge error: %v", err)
			}
			assertPNG(t, body, 24)
		})
	}
}

func TestRenderBadge_KindsDiffer(t *testing.T) {
	r := NewBadgeRenderer(Config{})

	plain, err := r.RenderBadge(2, false)
	if err != nil {
		t.Fatalf("RenderBadge error: %v", err)
	}
	multi, err := r.RenderBadge(2, true)
	if err != nil {
		t.Fatalf("RenderBadge error: %v", err)
	}
	if bytes.Equal(plain, multi) {
		t.Fatal("expected different badges for dataset and multiscale kinds")
	}
}
