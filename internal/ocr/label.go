package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ErrUnavailable reports that no OCR engine is compiled in or it failed to
// start.
var ErrUnavailable = errors.New("ocr unavailable")

// Word is one recognized word.
type Word struct {
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Bounds     image.Rectangle `json:"bounds"`
}

// Result is the text read from a label strip.
type Result struct {
	Text  string `json:"text"`
	Words []Word `json:"words"`

	// Slot is the slot name parsed from Text, empty when none was found.
	Slot string `json:"slot,omitempty"`

	// Region is the part of the image that was read.
	Region image.Rectangle `json:"region"`
}

// Reader reads text from an image region.
type Reader interface {
	Read(ctx context.Context, img image.Image, region image.Rectangle) (Result, error)
	Close() error
}

// Config tunes label reading.
type Config struct {
	Language string `mapstructure:"language"`

	// StripTop and StripHeight locate the label strip as fractions of the
	// image height. A zero height reads the whole image.
	StripTop    float64 `mapstructure:"strip_top"`
	StripHeight float64 `mapstructure:"strip_height"`

	// Upscale enlarges the strip before recognition; Tesseract prefers
	// glyphs at least 20px tall.
	Upscale float64 `mapstructure:"upscale"`

	// Contrast is passed to imaging.AdjustContrast (percent).
	Contrast float64 `mapstructure:"contrast"`

	// MinConfidence drops words Tesseract is less sure of (0-1).
	MinConfidence float64 `mapstructure:"min_confidence"`

	// SlotPattern extracts the slot name. Its first two groups are the row
	// letters and the position number.
	SlotPattern string `mapstructure:"slot_pattern"`
}

// DefaultConfig reads English text over the whole image.
func DefaultConfig() Config {
	return Config{
		Language:      "eng",
		Upscale:       2,
		Contrast:      40,
		MinConfidence: 0.5,
		SlotPattern:   `\b([A-Za-z]{1,3})\s*[-_ ]?\s*(\d{1,4})\b`,
	}
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var err error
	if c.Language == "" {
		err = multierr.Append(err, errors.New("language is empty"))
	}
	if c.StripTop < 0 || c.StripHeight < 0 || c.StripTop+c.StripHeight > 1 {
		err = multierr.Append(err, errors.Errorf("label strip %v+%v is outside the image", c.StripTop, c.StripHeight))
	}
	if c.Upscale < 1 {
		err = multierr.Append(err, errors.Errorf("upscale must be at least 1, got %v", c.Upscale))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		err = multierr.Append(err, errors.Errorf("min_confidence must be in [0,1], got %v", c.MinConfidence))
	}
	if _, perr := regexp.Compile(c.SlotPattern); perr != nil {
		err = multierr.Append(err, errors.Wrap(perr, "slot_pattern"))
	}
	return err
}

// Strip returns the configured label strip of an image with bounds b.
func (c Config) Strip(b image.Rectangle) image.Rectangle {
	if c.StripHeight <= 0 {
		return b
	}
	h := float64(b.Dy())
	y0 := b.Min.Y + int(c.StripTop*h)
	y1 := b.Min.Y + int((c.StripTop+c.StripHeight)*h)
	return image.Rect(b.Min.X, y0, b.Max.X, y1).Intersect(b)
}

// SlotParser extracts slot names from recognized text.
type SlotParser struct {
	re *regexp.Regexp
}

// NewSlotParser compiles pattern.
func NewSlotParser(pattern string) (*SlotParser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "compile slot pattern")
	}
	if re.NumSubexp() < 2 {
		return nil, errors.Errorf("slot pattern %q needs two groups", pattern)
	}
	return &SlotParser{re: re}, nil
}

// Parse returns the first slot name in text as upper-case letters, a dash
// and the number as written ("b 07" -> "B-07").
// It returns "" when text holds no slot name.
func (p *SlotParser) Parse(text string) string {
	m := p.re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1]) + "-" + m[2]
}

// ParseSlot parses text with the default slot pattern.
func ParseSlot(text string) string {
	p, err := NewSlotParser(DefaultConfig().SlotPattern)
	if err != nil {
		return ""
	}
	return p.Parse(text)
}

// Prepare crops region out of img and turns it into a high-contrast,
// upscaled grayscale image for recognition.
func Prepare(img image.Image, region image.Rectangle, cfg Config) (image.Image, error) {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return nil, errors.Errorf("label region %v is outside the image", region)
	}
	out := imaging.Grayscale(imaging.Crop(img, region))
	if cfg.Contrast != 0 {
		out = imaging.AdjustContrast(out, cfg.Contrast)
	}
	if cfg.Upscale > 1 {
		w := int(float64(region.Dx()) * cfg.Upscale)
		out = imaging.Resize(out, w, 0, imaging.Lanczos)
	}
	return out, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "encode label image")
	}
	return buf.Bytes(), nil
}

// scaleBack maps a rectangle on the prepared image back to the source.
func scaleBack(r image.Rectangle, region image.Rectangle, scale float64) image.Rectangle {
	if scale <= 0 {
		scale = 1
	}
	f := func(v int) int { return int(float64(v) / scale) }
	return image.Rect(
		region.Min.X+f(r.Min.X), region.Min.Y+f(r.Min.Y),
		region.Min.X+f(r.Max.X), region.Min.Y+f(r.Max.Y),
	).Intersect(region)
}
