package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Overlay is one box to draw on an annotated image.
type Overlay struct {
	// Rect is the box in image pixel coordinates.
	Rect image.Rectangle

	// Color is the outline color.
	Color color.RGBA

	// Number is drawn in the top-left corner of the box when positive.
	Number int
}

// AnnotateResult contains an annotated image encoded as base64 PNG.
type AnnotateResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Boxes       int    `json:"boxes"`
}

// Annotate draws each overlay's outline (thickness pixels wide) and number on
// a copy of img. The source image is not modified.
func Annotate(img image.Image, overlays []Overlay, thickness int) *image.RGBA {
	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	if thickness < 1 {
		thickness = 1
	}

	labelColor := color.RGBA{255, 255, 255, 255}
	for _, o := range overlays {
		r := o.Rect.Intersect(bounds)
		if r.Empty() {
			continue
		}
		for t := 0; t < thickness; t++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				result.SetRGBA(x, r.Min.Y+t, o.Color)
				result.SetRGBA(x, r.Max.Y-1-t, o.Color)
			}
			for y := r.Min.Y; y < r.Max.Y; y++ {
				result.SetRGBA(r.Min.X+t, y, o.Color)
				result.SetRGBA(r.Max.X-1-t, y, o.Color)
			}
		}
		if o.Number > 0 {
			drawLabel(result, r.Min.X+thickness+1, r.Min.Y+thickness+1, strconv.Itoa(o.Number), labelColor, o.Color)
		}
	}

	return result
}

// AnnotateBase64 is Annotate followed by PNG encoding.
func AnnotateBase64(img image.Image, overlays []Overlay, thickness int) (*AnnotateResult, error) {
	annotated := Annotate(img, overlays, thickness)
	encoded, err := EncodePNGBase64(annotated)
	if err != nil {
		return nil, err
	}
	return &AnnotateResult{
		Width:       annotated.Bounds().Dx(),
		Height:      annotated.Bounds().Dy(),
		ImageBase64: encoded,
		MimeType:    "image/png",
		Boxes:       len(overlays),
	}, nil
}

// ParseHexColor parses a hex color string like "#FF0000" or "#FF000080".
func ParseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, errors.New("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, errors.Wrapf(err, "parse color %q", hex)
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, errors.Wrapf(err, "parse color %q", hex)
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, errors.New("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// drawLabel draws text in the 7x13 bitmap face on a filled background, with
// the background's top-left corner at (x-1, y-1).
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(fg), Face: face}
	m := face.Metrics()

	box := image.Rect(x-1, y-1, x+d.MeasureString(text).Ceil()+1, y+m.Height.Ceil())
	draw.Draw(img, box.Intersect(img.Bounds()), image.NewUniform(bg), image.Point{}, draw.Src)

	d.Dot = fixed.P(x, y+m.Ascent.Ceil())
	d.DrawString(text)
}
