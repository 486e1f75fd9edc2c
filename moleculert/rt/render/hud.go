package render

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	hudPadding    = 4
	hudLineHeight = 15
)

var hudBackground = image.NewUniform(color.RGBA{A: 0xa0})

// drawHUD writes the lines into the top-left corner of img over a translucent
// panel.
func drawHUD(img *image.RGBA, lines []string) {
	if len(lines) == 0 {
		return
	}
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.White, Face: face}

	var width fixed.Int26_6
	for _, line := range lines {
		width = max(width, d.MeasureString(line))
	}
	panel := image.Rect(0, 0,
		width.Ceil()+2*hudPadding,
		len(lines)*hudLineHeight+2*hudPadding).Intersect(img.Bounds())
	draw.Draw(img, panel, hudBackground, image.Point{}, draw.Over)

	ascent := face.Metrics().Ascent.Ceil()
	for i, line := range lines {
		d.Dot = fixed.P(hudPadding, hudPadding+ascent+i*hudLineHeight)
		d.DrawString(line)
	}
}
