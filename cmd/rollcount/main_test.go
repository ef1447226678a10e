package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/export"
	"github.com/ironsheep/rollcount/internal/palette"
	"github.com/ironsheep/rollcount/internal/store"
)

// workspace holds a config pointing every file the CLI writes into a temp
// directory.
type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))

	cfg := `
logging:
  level: error
learned:
  enabled: false
store:
  path: ` + filepath.Join(dir, "rollcount.db") + `
`
	path := filepath.Join(dir, "rollcount.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &workspace{dir: dir, config: path}
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

// run executes the CLI with args and returns what it wrote to stdout.
func (w *workspace) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	root := newRootCommand(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--config", w.config, "--env-file", w.path(".env")))
	err := root.ExecuteContext(t.Context())
	return out.String(), multierr.Append(err, a.close())
}

func (w *workspace) writeRack(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.RGBA{200, 200, 200, 255})
		}
	}
	disk := func(cx, cy, r int, c color.Color) {
		for y := cy - r; y <= cy+r; y++ {
			for x := cx - r; x <= cx+r; x++ {
				if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
					img.Set(x, y, c)
				}
			}
		}
	}
	disk(60, 100, 25, color.RGBA{220, 30, 30, 255})
	disk(150, 100, 25, color.RGBA{220, 30, 30, 255})
	disk(240, 100, 25, color.RGBA{30, 60, 220, 255})

	path := w.path("rack.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestVersion(t *testing.T) {
	w := newWorkspace(t)
	out, err := w.run(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "rollcount dev\n"), out)
	assert.Contains(t, out, "Git commit: unknown")
}

func TestDetect(t *testing.T) {
	w := newWorkspace(t)
	rack := w.writeRack(t)

	out, err := w.run(t, "", "detect", rack,
		"--annotate", w.path("annotated.png"),
		"--labels", w.path("rack.txt"),
		"--class-mode", "color")
	require.NoError(t, err)

	var res detectOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Empty(t, res.EntryID)
	assert.Equal(t, rack, res.Image)
	assert.Equal(t, detection.MethodCircular, res.Set.Method)
	assert.Equal(t, 3, res.Set.Count)
	assert.Equal(t, map[palette.Label]int{palette.Red: 2, palette.Blue: 1}, res.Set.Breakdown)
	assert.NotEmpty(t, res.Attempts)

	f, err := os.Open(w.path("annotated.png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)

	data, err := os.ReadFile(w.path("rack.txt"))
	require.NoError(t, err)
	labels, err := export.ParseLabels(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, labels, 3)
}

func TestDetect_Errors(t *testing.T) {
	w := newWorkspace(t)
	rack := w.writeRack(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing image", []string{"detect", w.path("nope.png")}, "open"},
		{"not an image", []string{"detect", w.config}, "decode"},
		{"bad class mode", []string{"detect", rack, "--class-mode", "shape"}, "class mode"},
		{"no argument", []string{"detect"}, "arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.run(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestEntryWorkflow saves a detection, corrects it, and checks the
// correction shows up in the statistics and both export formats.
func TestEntryWorkflow(t *testing.T) {
	w := newWorkspace(t)
	rack := w.writeRack(t)

	out, err := w.run(t, "", "detect", rack, "--save")
	require.NoError(t, err)
	var det detectOutput
	require.NoError(t, json.Unmarshal([]byte(out), &det))
	require.NotEmpty(t, det.EntryID)
	require.Len(t, det.Set.Detections, 3)

	// The operator deletes the blue roll.
	corrected := detection.NewSet(detection.MethodManual, 300, 200, det.Set.Detections[:2])
	data, err := json.Marshal(corrected)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(w.path("corrected.json"), data, 0o644))

	out, err = w.run(t, "", "reconcile", "--entry", det.EntryID, "--corrected", w.path("corrected.json"), "--editor", "ana")
	require.NoError(t, err)
	var rec reconcileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, det.EntryID, rec.EntryID)
	assert.Equal(t, 2, rec.Summary.Unchanged)
	assert.Equal(t, 1, rec.Summary.Deleted)
	assert.InDelta(t, 66.7, rec.Summary.Accuracy, 1e-9)

	out, err = w.run(t, "", "stats", "--top", "3")
	require.NoError(t, err)
	var stats store.Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 1, stats.TotalEntries)
	assert.EqualValues(t, 1, stats.EditedEntries)
	require.Len(t, stats.TopEditors, 1)
	assert.Equal(t, "ana", stats.TopEditors[0].Editor)

	_, err = w.run(t, "", "export", "--out", w.path("dataset.zip"), "--class-mode", "color", "--images")
	require.NoError(t, err)
	zr, err := zip.OpenReader(w.path("dataset.zip"))
	require.NoError(t, err)
	defer zr.Close()
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}
	assert.Contains(t, files, "dataset.yaml")
	assert.Contains(t, files, "images/train/rack.png")
	require.Contains(t, files, "labels/rack.txt")
	rc, err := files["labels/rack.txt"].Open()
	require.NoError(t, err)
	defer rc.Close()
	labels, err := export.ParseLabels(rc)
	require.NoError(t, err)
	assert.Len(t, labels, 2)

	out, err = w.run(t, "", "export", "--format", "training", "--edited-only")
	require.NoError(t, err)
	var training []export.TrainingEntry
	require.NoError(t, json.Unmarshal([]byte(out), &training))
	require.Len(t, training, 1)
	assert.Equal(t, det.EntryID, training[0].EntryID)
	assert.Equal(t, 3, training[0].CorrectionStats.AICount)
	assert.Equal(t, 2, training[0].CorrectionStats.FinalCount)
	require.Len(t, training[0].AIDetections, 1)
	assert.True(t, training[0].AIDetections[0].FalsePositive)
}

func TestReconcile_Files(t *testing.T) {
	w := newWorkspace(t)
	box := func(x float64) detection.Detection {
		return detection.New(detection.Box{X: x, Y: 40, Width: 10, Height: 10}, 0.9, detection.MethodCircular).WithColor(palette.Green)
	}
	original := detection.NewSet(detection.MethodCircular, 100, 100, []detection.Detection{box(10), box(40)})
	corrected := detection.NewSet(detection.MethodManual, 100, 100, []detection.Detection{original.Detections[0], box(70)})

	// The original is wrapped the way detect prints it.
	data, err := json.Marshal(map[string]interface{}{"image": "rack.png", "set": original})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(w.path("original.json"), data, 0o644))
	data, err = json.Marshal(corrected)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(w.path("corrected.json"), data, 0o644))

	out, err := w.run(t, "", "reconcile", "--original", w.path("original.json"), "--corrected", w.path("corrected.json"))
	require.NoError(t, err)
	var rec reconcileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Empty(t, rec.EntryID)
	assert.Equal(t, 2, rec.Summary.OriginalCount)
	assert.Equal(t, 2, rec.Summary.CorrectedCount)
	assert.Equal(t, 1, rec.Summary.Unchanged)
	assert.Equal(t, "unknown", rec.Records[0].Editor)
}

func TestReconcile_Errors(t *testing.T) {
	w := newWorkspace(t)
	require.NoError(t, os.WriteFile(w.path("bad.json"), []byte("{"), 0o644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"neither source", []string{"reconcile", "--corrected", w.path("bad.json")}, "exactly one"},
		{"both sources", []string{"reconcile", "--entry", "x", "--original", "y", "--corrected", "z"}, "exactly one"},
		{"missing corrected", []string{"reconcile", "--original", w.path("bad.json")}, "corrected"},
		{"malformed corrected", []string{"reconcile", "--original", w.path("bad.json"), "--corrected", w.path("bad.json")}, "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.run(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExport_Errors(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.run(t, "", "export", "--format", "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")

	_, err = w.run(t, "", "export", "--class-mode", "shape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class mode")
}

func TestStats_Empty(t *testing.T) {
	w := newWorkspace(t)
	out, err := w.run(t, "", "stats")
	require.NoError(t, err)
	var stats store.Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Zero(t, stats.TotalEntries)

	_, err = w.run(t, "", "stats", "--top", "0")
	assert.Error(t, err)
}

func TestServe(t *testing.T) {
	w := newWorkspace(t)
	in := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n"

	for _, args := range [][]string{{"serve"}, {}} {
		out, err := w.run(t, in, args...)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], `"name":"rollcount"`)
		assert.Contains(t, lines[1], "rolls_detect")
	}
}

func TestConfigError(t *testing.T) {
	w := newWorkspace(t)
	require.NoError(t, os.WriteFile(w.config, []byte("cascade:\n  min_detections: -1\n"), 0o644))

	_, err := w.run(t, "", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_detections")
}
