package palette

import (
	"image/color"

	"github.com/ironsheep/rollcount/internal/imaging"
)

// Label is a named roll color.
type Label string

// Palette labels in rank order. The position of a label in this list is its
// tie-break rank: when a hue falls on the boundary between two bands, the
// lower-ranked label wins.
const (
	Red     Label = "red"
	Orange  Label = "orange"
	Yellow  Label = "yellow"
	Green   Label = "green"
	Cyan    Label = "cyan"
	Blue    Label = "blue"
	Purple  Label = "purple"
	Pink    Label = "pink"
	White   Label = "white"
	Gray    Label = "gray"
	Black   Label = "black"
	Brown   Label = "brown"
	Unknown Label = "unknown"
)

var order = []Label{Red, Orange, Yellow, Green, Cyan, Blue, Purple, Pink, White, Gray, Black, Brown}

var display = map[Label]string{
	Red:     "#E02020",
	Orange:  "#F08020",
	Yellow:  "#F0D020",
	Green:   "#20B040",
	Cyan:    "#20C0D0",
	Blue:    "#2050E0",
	Purple:  "#8030C0",
	Pink:    "#F070B0",
	White:   "#F0F0F0",
	Gray:    "#909090",
	Black:   "#202020",
	Brown:   "#805030",
	Unknown: "#FF00FF",
}

// Labels returns the palette in rank order, without Unknown.
func Labels() []Label {
	out := make([]Label, len(order))
	copy(out, order)
	return out
}

// Index returns the rank of l; Unknown and foreign labels rank last.
func (l Label) Index() int {
	for i, o := range order {
		if o == l {
			return i
		}
	}
	return len(order)
}

// Valid reports whether l is a palette label or Unknown.
func (l Label) Valid() bool {
	return l == Unknown || l.Index() < len(order)
}

// Display returns the color used to draw l on annotated images.
func (l Label) Display() color.RGBA {
	hex, ok := display[l]
	if !ok {
		hex = display[Unknown]
	}
	c, err := imaging.ParseHexColor(hex)
	if err != nil {
		return color.RGBA{255, 0, 255, 255}
	}
	return c
}
