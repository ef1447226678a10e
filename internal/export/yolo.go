package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/palette"
)

// ClassMode selects how detections map to YOLO class ids.
type ClassMode string

const (
	// ClassSingle puts every roll in class 0.
	ClassSingle ClassMode = "single"

	// ClassColor uses the palette rank of the roll's color as its class,
	// with unknown as the last class.
	ClassColor ClassMode = "color"
)

// SingleClassName is the only class name in single-class datasets.
const SingleClassName = "thread_roll"

// Valid reports whether m is a known mode.
func (m ClassMode) Valid() bool {
	return m == ClassSingle || m == ClassColor
}

// Names returns the class names indexed by class id.
func (m ClassMode) Names() []string {
	if m != ClassColor {
		return []string{SingleClassName}
	}
	labels := palette.Labels()
	names := make([]string, 0, len(labels)+1)
	for _, l := range labels {
		names = append(names, string(l))
	}
	return append(names, string(palette.Unknown))
}

// Class returns the class id of d.
func (m ClassMode) Class(d detection.Detection) int {
	if m != ClassColor {
		return 0
	}
	return d.Color.Index()
}

// Label is one parsed YOLO annotation.
type Label struct {
	Class int
	Box   detection.Box
}

// FormatLine renders one annotation: class id, then the box center and size
// as fractions of the image, six decimals each.
func FormatLine(class int, b detection.Box) string {
	cx, cy := b.Center()
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", class, cx/100, cy/100, b.Width/100, b.Height/100)
}

// Labels renders the label file of a set, one line per detection in set
// order.
func Labels(s detection.Set, mode ClassMode) string {
	lines := make([]string, 0, len(s.Detections))
	for _, d := range s.Detections {
		lines = append(lines, FormatLine(mode.Class(d), d.Box))
	}
	return strings.Join(lines, "\n")
}

// ParseLine parses one annotation line back into a percent box.
func ParseLine(line string) (Label, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return Label{}, errors.Errorf("want 5 fields, got %d in %q", len(fields), line)
	}
	class, err := strconv.Atoi(fields[0])
	if err != nil || class < 0 {
		return Label{}, errors.Errorf("bad class id %q", fields[0])
	}
	var v [4]float64
	for i, f := range fields[1:] {
		v[i], err = strconv.ParseFloat(f, 64)
		if err != nil {
			return Label{}, errors.Wrapf(err, "field %d", i+2)
		}
		if v[i] < 0 || v[i] > 1 {
			return Label{}, errors.Errorf("field %d out of range: %v", i+2, v[i])
		}
	}
	cx, cy, w, h := v[0]*100, v[1]*100, v[2]*100, v[3]*100
	return Label{
		Class: class,
		Box:   detection.Box{X: cx - w/2, Y: cy - h/2, Width: w, Height: h},
	}, nil
}

// ParseLabels reads a label file. Blank lines are skipped.
func ParseLabels(r io.Reader) ([]Label, error) {
	var out []Label
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		l, err := ParseLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", n)
		}
		out = append(out, l)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read labels")
	}
	return out, nil
}
