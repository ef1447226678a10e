package export

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/rollcount/internal/detection"
)

// Sample is one image of a dataset with its corrected detections.
type Sample struct {
	// Filename is the image's base name; the label file takes its stem.
	Filename string

	Set detection.Set

	// Image holds the encoded image to bundle, if any.
	Image []byte
}

// DatasetConfig is written to dataset.yaml.
type DatasetConfig struct {
	Path             string   `yaml:"path"`
	Train            string   `yaml:"train"`
	Val              string   `yaml:"val"`
	NC               int      `yaml:"nc"`
	Names            []string `yaml:"names"`
	TotalImages      int      `yaml:"total_images"`
	TotalAnnotations int      `yaml:"total_annotations"`
}

// WriteDataset writes a zipped YOLO dataset: dataset.yaml, README.md, one
// label file per sample under labels/, and the sample images under
// images/train/ when they are present.
func WriteDataset(w io.Writer, samples []Sample, mode ClassMode) (err error) {
	if !mode.Valid() {
		return errors.Errorf("unknown class mode %q", mode)
	}
	zw := zip.NewWriter(w)
	defer func() { err = multierr.Append(err, errors.Wrap(zw.Close(), "close archive")) }()

	annotations := 0
	for _, s := range samples {
		annotations += s.Set.Count
	}
	names := mode.Names()
	cfg := DatasetConfig{
		Path:             ".",
		Train:            "images/train",
		Val:              "images/val",
		NC:               len(names),
		Names:            names,
		TotalImages:      len(samples),
		TotalAnnotations: annotations,
	}

	meta, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal dataset.yaml")
	}
	if err := writeEntry(zw, "dataset.yaml", meta); err != nil {
		return err
	}
	if err := writeEntry(zw, "README.md", []byte(readme(cfg, mode))); err != nil {
		return err
	}

	stems := uniqueStems(samples)
	for i, s := range samples {
		if err := writeEntry(zw, path.Join("labels", stems[i]+".txt"), []byte(Labels(s.Set, mode))); err != nil {
			return err
		}
		if len(s.Image) == 0 {
			continue
		}
		name := stems[i] + strings.ToLower(filepath.Ext(s.Filename))
		if err := writeEntry(zw, path.Join("images", "train", name), s.Image); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return errors.Wrapf(err, "create %s", name)
	}
	if _, err := f.Write(data); err != nil {
		return errors.Wrapf(err, "write %s", name)
	}
	return nil
}

// uniqueStems strips extensions from the sample file names, suffixing
// repeats so no two label files collide.
func uniqueStems(samples []Sample) []string {
	seen := make(map[string]int, len(samples))
	out := make([]string, len(samples))
	for i, s := range samples {
		base := filepath.Base(s.Filename)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if stem == "" || stem == "." {
			stem = fmt.Sprintf("image_%d", i)
		}
		seen[stem]++
		if n := seen[stem]; n > 1 {
			stem = fmt.Sprintf("%s_%d", stem, n)
		}
		out[i] = stem
	}
	return out
}

func readme(cfg DatasetConfig, mode ClassMode) string {
	var b strings.Builder
	b.WriteString("# Thread Roll Detection Training Data\n\n")
	b.WriteString("Corrected bounding box annotations for thread roll detection.\n\n")
	b.WriteString("## Format\n")
	b.WriteString("- YOLO format annotations, one file per image under labels/\n")
	b.WriteString("- Each line: <class> <x_center> <y_center> <width> <height>\n")
	b.WriteString("- Coordinates are normalized (0-1)\n")
	if mode == ClassColor {
		b.WriteString("- Classes are roll colors:\n")
		for i, n := range cfg.Names {
			fmt.Fprintf(&b, "  - %d: %s\n", i, n)
		}
	} else {
		fmt.Fprintf(&b, "- Class 0: %s\n", SingleClassName)
	}
	b.WriteString("\n## Usage\n")
	b.WriteString("1. Extract this zip file\n")
	b.WriteString("2. Copy your images to ./images/train/ if they are not bundled\n")
	b.WriteString("3. Update paths in dataset.yaml\n")
	b.WriteString("4. Train with: yolo train data=dataset.yaml model=yolov8n.pt\n")
	b.WriteString("\n## Statistics\n")
	fmt.Fprintf(&b, "Total images: %d\n", cfg.TotalImages)
	fmt.Fprintf(&b, "Total annotations: %d\n", cfg.TotalAnnotations)
	return b.String()
}
