// Package palette provides marker colours.
package palette

import (
	"fmt"
	"image/color"
)

// Palette colours markers by dataset kind.
type Palette struct {
	Dataset    color.RGBA
	Multiscale color.RGBA
	Outline    color.RGBA
	Text       color.RGBA
}

// Default is the palette used for marker badges.
var Default = Palette{
	Dataset:    color.RGBA{31, 119, 180, 255}, // Blue
	Multiscale: color.RGBA{255, 127, 14, 255}, // Orange
	Outline:    color.RGBA{255, 255, 255, 255},
	Text:       color.RGBA{255, 255, 255, 255},
}

// Fill returns the fill colour for a marker.
func (p Palette) Fill(multiscale bool) color.RGBA {
	if multiscale {
		return p.Multiscale
	}
	return p.Dataset
}

// Hex formats c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
