// Package chart renders warn series as PNG bar charts.
package chart

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"doggobot/internal/punish"
)

const (
	DefaultTitle = "Warnings per Day"
	EmptyText    = "No warn data"
)

// Options controls the image. Zero values take defaults.
type Options struct {
	Width  int
	Height int
	Title  string
}

func (o Options) withDefaults() Options {
	if o.Width < 200 {
		o.Width = 800
	}
	if o.Height < 150 {
		o.Height = 400
	}
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	return o
}

var (
	colBackground = color.RGBA{0xff, 0xff, 0xff, 0xff}
	colBar        = color.RGBA{0x4c, 0x72, 0xb0, 0xff}
	colGrid       = color.RGBA{0xdd, 0xdd, 0xdd, 0xff}
	colAxis       = color.RGBA{0x33, 0x33, 0x33, 0xff}
	colText       = color.RGBA{0x22, 0x22, 0x22, 0xff}
)

var face = basicfont.Face7x13

const (
	marginLeft   = 48
	marginRight  = 16
	marginTop    = 36
	marginBottom = 40
)

// plotArea is the rectangle bars are drawn in.
func plotArea(w, h int) image.Rectangle {
	return image.Rect(marginLeft, marginTop, w-marginRight, h-marginBottom)
}

// RenderDaily draws one bar per date of a sparse series. Dates are not
// filled in: the x axis lists exactly the days present.
func RenderDaily(series []punish.DayCount, opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	fill(img, img.Bounds(), colBackground)
	drawTextCentered(img, opts.Title, opts.Width/2, marginTop/2+5, colText)

	if len(series) == 0 {
		drawTextCentered(img, EmptyText, opts.Width/2, opts.Height/2, colText)
		return encode(img)
	}

	plot := plotArea(opts.Width, opts.Height)
	maxCount := 0
	for _, d := range series {
		if d.Count > maxCount {
			maxCount = d.Count
		}
	}
	step := tickStep(maxCount)
	yMax := ((maxCount + step - 1) / step) * step
	scaleY := func(v int) int {
		return plot.Max.Y - v*plot.Dy()/yMax
	}

	for v := 0; v <= yMax; v += step {
		y := scaleY(v)
		fill(img, image.Rect(plot.Min.X, y, plot.Max.X, y+1), colGrid)
		label := strconv.Itoa(v)
		drawText(img, label, plot.Min.X-6-textWidth(label), y+4, colText)
	}

	n := len(series)
	slot := plot.Dx() / n
	if slot < 1 {
		slot = 1
	}
	barW := slot * 7 / 10
	if barW < 1 {
		barW = 1
	}

	dateLabelW := textWidth("00-00") + 6
	every := 1
	if slot < dateLabelW {
		every = (dateLabelW + slot - 1) / slot
	}
	showCounts := slot >= textWidth(strconv.Itoa(maxCount))+2

	for i, d := range series {
		cx := plot.Min.X + i*slot + slot/2
		top := scaleY(d.Count)
		fill(img, image.Rect(cx-barW/2, top, cx-barW/2+barW, plot.Max.Y), colBar)
		if showCounts {
			drawTextCentered(img, strconv.Itoa(d.Count), cx, top-3, colText)
		}
		if i%every == 0 {
			drawTextCentered(img, shortDate(d.Date), cx, plot.Max.Y+16, colText)
		}
	}

	fill(img, image.Rect(plot.Min.X, plot.Max.Y, plot.Max.X, plot.Max.Y+1), colAxis)
	fill(img, image.Rect(plot.Min.X-1, plot.Min.Y, plot.Min.X, plot.Max.Y+1), colAxis)

	return encode(img)
}

// tickStep picks a y grid step giving at most ~8 lines.
func tickStep(maxCount int) int {
	for _, s := range []int{1, 2, 5, 10, 20, 25, 50, 100, 250, 500, 1000} {
		if maxCount/s <= 8 {
			return s
		}
	}
	return (maxCount/8 + 999) / 1000 * 1000
}

// shortDate turns "2024-03-05" into "03-05".
func shortDate(d string) string {
	if len(d) == len("2006-01-02") {
		return d[5:]
	}
	return d
}

func fill(img draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func textWidth(s string) int {
	return font.MeasureString(face, s).Ceil()
}

func drawText(img draw.Image, s string, x, y int, c color.Color) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawTextCentered(img draw.Image, s string, cx, y int, c color.Color) {
	drawText(img, s, cx-textWidth(s)/2, y, c)
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
