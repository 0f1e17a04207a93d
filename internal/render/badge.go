// Package render draws marker badges using fogleman/gg.
package render

import (
	"bytes"
	"image"
	"image/png"
	"strconv"
	"sync"

	"github.com/fogleman/gg"

	"github.com/anatomap/server/pkg/palette"
)

// Config contains renderer configuration.
type Config struct {
	BadgeSize int
	Palette   *palette.Palette
}

// BadgeRenderer renders the circular count badges shown on cluster markers.
type BadgeRenderer struct {
	config      Config
	palette     palette.Palette
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewBadgeRenderer creates a new badge renderer.
func NewBadgeRenderer(cfg Config) *BadgeRenderer {
	if cfg.BadgeSize <= 0 {
		cfg.BadgeSize = 32
	}
	p := palette.Default
	if cfg.Palette != nil {
		p = *cfg.Palette
	}
	return &BadgeRenderer{
		config:  cfg,
		palette: p,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.BadgeSize, cfg.BadgeSize)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 4*1024))
			},
		},
	}
}

// RenderBadge draws a badge showing count. A zero count gives an empty badge.
func (r *BadgeRenderer) RenderBadge(count int, multiscale bool) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()

	if count <= 0 {
		return r.encodeContext(dc)
	}

	size := float64(r.config.BadgeSize)
	centre := size / 2
	radius := size/2 - 1

	dc.DrawCircle(centre, centre, radius)
	dc.SetColor(r.palette.Fill(multiscale))
	dc.FillPreserve()
	dc.SetColor(r.palette.Outline)
	dc.SetLineWidth(1.5)
	dc.Stroke()

	label := strconv.Itoa(count)
	if count > 99 {
		label = "99+"
	}
	dc.SetColor(r.palette.Text)
	dc.DrawStringAnchored(label, centre, centre, 0.5, 0.35)

	return r.encodeContext(dc)
}

func (r *BadgeRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	return r.encodeImage(dc.Image())
}

func (r *BadgeRenderer) encodeImage(img image.Image) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, img); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
