package learned

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ironsheep/rollcount/internal/detection"
)

const modelURL = "https://models.example.com/rolls.tflite"

var modelBytes = []byte("fake tflite flatbuffer")

// fakeRuntime counts loads and hands out engines returning a fixed output.
type fakeRuntime struct {
	loads   atomic.Int32
	delay   time.Duration
	loadErr error
	output  Output
}

func (r *fakeRuntime) Name() string { return "fake" }

func (r *fakeRuntime) Load(model []byte, _ Device) (Engine, error) {
	r.loads.Add(1)
	time.Sleep(r.delay)
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	if string(model) != string(modelBytes) {
		return nil, errors.New("not a model")
	}
	return &fakeEngine{output: r.output}, nil
}

type fakeEngine struct {
	output Output
	inputs int
	closed bool
}

func (e *fakeEngine) Infer(input []float32) (Output, error) {
	e.inputs = len(input)
	return e.output, nil
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "models", DefaultModelFile)
	cfg.InputSize = 64
	return cfg
}

func writeModel(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// headOutput builds a YOLO head from per-anchor rows (cx, cy, w, h,
// scores...). Zero anchors are appended until there are more anchors than
// attributes, as in a real export.
func headOutput(anchorMajor bool, anchors ...[]float32) Output {
	attrs := len(anchors[0])
	for len(anchors) <= attrs {
		anchors = append(anchors, make([]float32, attrs))
	}
	n := len(anchors)
	data := make([]float32, attrs*n)
	for i, a := range anchors {
		for k, v := range a {
			if anchorMajor {
				data[i*attrs+k] = v
			} else {
				data[k*n+i] = v
			}
		}
	}
	if anchorMajor {
		return Output{Shape: []int{1, n, attrs}, Data: data}
	}
	return Output{Shape: []int{1, attrs, n}, Data: data}
}

// twoAnchorOutput is a channel-major head with one confident roll on the
// left and one weak box on the right.
func twoAnchorOutput() Output {
	return headOutput(false,
		[]float32{0.25, 0.5, 0.2, 0.3, 0.9},
		[]float32{0.75, 0.5, 0.2, 0.3, 0.1},
	)
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 2), uint8(y * 3), 90, 255})
		}
	}
	return img
}

func TestDetector_DetectWithCachedModel(t *testing.T) {
	cfg := testConfig(t)
	writeModel(t, cfg.ModelPath, modelBytes)
	rt := &fakeRuntime{output: twoAnchorOutput()}

	d, err := New(cfg, nil, WithRuntime(rt))
	require.NoError(t, err)
	assert.Equal(t, StateUninitialized, d.State())

	set, err := d.Detect(t.Context(), testImage())
	require.NoError(t, err)

	assert.Equal(t, StateReady, d.State())
	assert.Equal(t, detection.MethodLearned, set.Method)
	require.Equal(t, 1, set.Count)
	assert.Equal(t, 120, set.ImageWidth)
	assert.NoError(t, set.Validate())

	det := set.Detections[0]
	assert.InDelta(t, 0.9, det.Confidence, 1e-6)
	assert.Equal(t, detection.MethodLearned, det.Method)
	assert.InDelta(t, 15.0, det.Box.X, 1e-4)
	assert.InDelta(t, 35.0, det.Box.Y, 1e-4)
	assert.InDelta(t, 20.0, det.Box.Width, 1e-4)
	assert.InDelta(t, 30.0, det.Box.Height, 1e-4)

	require.NoError(t, d.Close())
}

func TestDetector_ConcurrentAcquireLoadsOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	writeModel(t, cfg.ModelPath, modelBytes)
	rt := &fakeRuntime{delay: 50 * time.Millisecond, output: twoAnchorOutput()}
	d, err := New(cfg, nil, WithRuntime(rt))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = d.Acquire(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), rt.loads.Load())
	assert.Equal(t, StateReady, d.State())
	require.NoError(t, d.Close())
}

func TestDetector_DownloadsMissingModel(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, modelURL, httpmock.NewBytesResponder(http.StatusOK, modelBytes))

	cfg := testConfig(t)
	cfg.ModelURL = modelURL
	cfg.ModelSHA256 = digest(modelBytes)
	rt := &fakeRuntime{output: twoAnchorOutput()}

	d, err := New(cfg, nil, WithRuntime(rt), WithHTTPClient(&http.Client{Transport: mock}))
	require.NoError(t, err)
	require.NoError(t, d.Acquire(t.Context()))

	assert.Equal(t, 1, mock.GetTotalCallCount())
	cached, err := os.ReadFile(cfg.ModelPath)
	require.NoError(t, err)
	assert.Equal(t, modelBytes, cached)

	// A second process finds the cached file and does not download again.
	d2, err := New(cfg, nil, WithRuntime(rt), WithHTTPClient(&http.Client{Transport: mock}))
	require.NoError(t, err)
	require.NoError(t, d2.Acquire(t.Context()))
	assert.Equal(t, 1, mock.GetTotalCallCount())

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.ModelPath), ".model-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestDetector_DownloadFailures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		sha       string
	}{
		{"server error", httpmock.NewStringResponder(http.StatusInternalServerError, "boom"), ""},
		{"network down", httpmock.NewErrorResponder(errors.New("connection refused")), ""},
		{"checksum mismatch", httpmock.NewBytesResponder(http.StatusOK, []byte("truncated")), digest(modelBytes)},
		{"empty body", httpmock.NewBytesResponder(http.StatusOK, nil), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := httpmock.NewMockTransport()
			mock.RegisterResponder(http.MethodGet, modelURL, tt.responder)

			cfg := testConfig(t)
			cfg.ModelURL = modelURL
			cfg.ModelSHA256 = tt.sha
			d, err := New(cfg, nil, WithRuntime(&fakeRuntime{}), WithHTTPClient(&http.Client{Transport: mock}))
			require.NoError(t, err)

			_, err = d.Detect(t.Context(), testImage())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrModelUnavailable)
			assert.Equal(t, StateFailed, d.State())

			_, statErr := os.Stat(cfg.ModelPath)
			assert.True(t, os.IsNotExist(statErr), "no partial model may be left in the cache")
		})
	}
}

func TestDetector_MissingModelWithoutURL(t *testing.T) {
	cfg := testConfig(t)
	rt := &fakeRuntime{}
	d, err := New(cfg, nil, WithRuntime(rt))
	require.NoError(t, err)

	_, err = d.Detect(t.Context(), testImage())
	assert.ErrorIs(t, err, ErrModelUnavailable)

	// Failure is sticky: a later call does not retry.
	writeModel(t, cfg.ModelPath, modelBytes)
	_, err = d.Detect(t.Context(), testImage())
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, StateFailed, d.State())
	assert.Equal(t, int32(0), rt.loads.Load())
}

func TestDetector_CorruptedCache(t *testing.T) {
	t.Run("checksum mismatch without url", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.ModelSHA256 = digest(modelBytes)
		writeModel(t, cfg.ModelPath, []byte("garbage"))

		d, err := New(cfg, nil, WithRuntime(&fakeRuntime{}))
		require.NoError(t, err)
		err = d.Acquire(t.Context())
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.Contains(t, err.Error(), "corrupted")
	})

	t.Run("checksum mismatch downloads again", func(t *testing.T) {
		mock := httpmock.NewMockTransport()
		mock.RegisterResponder(http.MethodGet, modelURL, httpmock.NewBytesResponder(http.StatusOK, modelBytes))

		cfg := testConfig(t)
		cfg.ModelURL = modelURL
		cfg.ModelSHA256 = digest(modelBytes)
		writeModel(t, cfg.ModelPath, []byte("garbage"))

		d, err := New(cfg, nil, WithRuntime(&fakeRuntime{}), WithHTTPClient(&http.Client{Transport: mock}))
		require.NoError(t, err)
		require.NoError(t, d.Acquire(t.Context()))
		assert.Equal(t, 1, mock.GetTotalCallCount())
	})

	t.Run("runtime rejects file", func(t *testing.T) {
		cfg := testConfig(t)
		writeModel(t, cfg.ModelPath, []byte("garbage"))

		d, err := New(cfg, nil, WithRuntime(&fakeRuntime{}))
		require.NoError(t, err)
		err = d.Acquire(t.Context())
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})
}

func TestDetector_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enabled = false
	writeModel(t, cfg.ModelPath, modelBytes)
	rt := &fakeRuntime{}

	d, err := New(cfg, nil, WithRuntime(rt))
	require.NoError(t, err)

	_, err = d.Detect(t.Context(), testImage())
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, int32(0), rt.loads.Load())
}

func TestDetector_InvalidInput(t *testing.T) {
	d, err := New(testConfig(t), nil, WithRuntime(&fakeRuntime{}))
	require.NoError(t, err)

	_, err = d.Detect(t.Context(), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrModelUnavailable)
}

func TestDetector_AcquireHonoursCallerContext(t *testing.T) {
	cfg := testConfig(t)
	writeModel(t, cfg.ModelPath, modelBytes)
	rt := &fakeRuntime{delay: 200 * time.Millisecond}
	d, err := New(cfg, nil, WithRuntime(rt))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	err = d.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The load carries on for the next caller.
	require.NoError(t, d.Acquire(t.Context()))
	assert.Equal(t, int32(1), rt.loads.Load())
	require.NoError(t, d.Close())
}

func TestDetector_CloseBeforeUse(t *testing.T) {
	cfg := testConfig(t)
	writeModel(t, cfg.ModelPath, modelBytes)
	rt := &fakeRuntime{}
	d, err := New(cfg, nil, WithRuntime(rt))
	require.NoError(t, err)

	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Acquire(t.Context()), ErrModelUnavailable)
	assert.Equal(t, int32(0), rt.loads.Load())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no model path", func(c *Config) { c.ModelPath = "" }},
		{"tiny input", func(c *Config) { c.InputSize = 8 }},
		{"floor above one", func(c *Config) { c.ConfidenceFloor = 2 }},
		{"negative iou", func(c *Config) { c.IoUThreshold = -0.1 }},
		{"negative threads", func(c *Config) { c.Threads = -1 }},
		{"short digest", func(c *Config) { c.ModelSHA256 = "abc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSelectDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseAccelerator = false
	cfg.Threads = 3

	dev := SelectDevice(cfg)
	assert.False(t, dev.Accelerated)
	assert.Equal(t, 3, dev.Threads)
	assert.Equal(t, "accelerator disabled", dev.Reason)

	cfg.Threads = 0
	cfg.UseAccelerator = true
	dev = SelectDevice(cfg)
	assert.Positive(t, dev.Threads)
	assert.NotEmpty(t, dev.Reason)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
}
