package learned

import (
	"context"
	"image"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/detection"
	"github.com/ironsheep/rollcount/internal/imaging"
	"github.com/ironsheep/rollcount/internal/logging"
	"github.com/ironsheep/rollcount/internal/metrics"
)

// Option customizes a Detector.
type Option func(*Detector)

// WithRuntime replaces the compiled-in model runtime.
func WithRuntime(rt Runtime) Option {
	return func(d *Detector) { d.runtime = rt }
}

// WithMetrics records model loads on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// WithHTTPClient sets the client used to download the model.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Detector) { d.client = c }
}

// Detector wraps a pretrained YOLO-style roll detector. The model is
// acquired lazily on the first Detect and shared by every later call.
type Detector struct {
	cfg     Config
	runtime Runtime
	client  *http.Client
	log     *zap.Logger
	handle  *modelHandle
	device  Device
	metrics *metrics.Metrics
}

// New validates cfg and returns a detector. Nothing is loaded until the
// first Detect or Acquire.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid learned detector config")
	}
	d := &Detector{
		cfg: cfg,
		log: logging.OrNop(logger).Named("learned"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.runtime == nil {
		d.runtime = DefaultRuntime(d.log)
	}
	if d.client == nil {
		d.client = &http.Client{}
	}
	d.device = SelectDevice(cfg)
	d.handle = newModelHandle(d.loadModel)
	return d, nil
}

// Method returns MethodLearned.
func (d *Detector) Method() detection.Method {
	return detection.MethodLearned
}

// State reports the model lifecycle stage.
func (d *Detector) State() State {
	return d.handle.State()
}

// Device reports the compute device chosen for inference.
func (d *Detector) Device() Device {
	return d.device
}

// Acquire loads the model if needed and blocks until it is ready or has
// failed. Failures match ErrModelUnavailable.
func (d *Detector) Acquire(ctx context.Context) error {
	_, err := d.handle.Acquire(ctx)
	return err
}

// Close releases the model.
func (d *Detector) Close() error {
	return d.handle.Close()
}

// Detect runs the model on img. Every failure other than invalid input
// matches ErrModelUnavailable.
func (d *Detector) Detect(ctx context.Context, img image.Image) (detection.Set, error) {
	if err := imaging.Validate(img); err != nil {
		return detection.Set{}, err
	}
	if !d.cfg.Enabled {
		return detection.Set{}, unavailable(nil, "learned detector disabled")
	}

	engine, err := d.handle.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			return detection.Set{}, err
		}
		return detection.Set{}, unavailable(err, "acquire model")
	}

	start := time.Now()
	out, err := engine.Infer(prepareInput(img, d.cfg.InputSize))
	if err != nil {
		return detection.Set{}, unavailable(err, "inference")
	}
	dets, err := decodeYOLO(out, d.cfg)
	if err != nil {
		return detection.Set{}, unavailable(err, "decode output")
	}
	detection.SortReadingOrder(dets)

	b := img.Bounds()
	d.log.Debug("inference done",
		zap.Int("detections", len(dets)),
		zap.Duration("elapsed", time.Since(start)))
	return detection.NewSet(detection.MethodLearned, b.Dx(), b.Dy(), dets), nil
}

func (d *Detector) loadModel(ctx context.Context) (Engine, error) {
	if !d.cfg.Enabled {
		return nil, unavailable(nil, "learned detector disabled")
	}
	if d.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.DownloadTimeout)
		defer cancel()
	}

	src := &modelSource{
		path:   d.cfg.ModelPath,
		url:    d.cfg.ModelURL,
		sha256: d.cfg.ModelSHA256,
		client: d.client,
		log:    d.log,
	}
	data, err := src.read(ctx)
	if err != nil {
		d.metrics.RecordModelLoad("failed")
		d.log.Warn("model unavailable", zap.Error(err))
		return nil, err
	}

	engine, err := d.runtime.Load(data, d.device)
	if err != nil {
		d.metrics.RecordModelLoad("failed")
		d.log.Warn("model load failed", zap.String("runtime", d.runtime.Name()), zap.Error(err))
		return nil, unavailable(err, "load model with "+d.runtime.Name())
	}

	d.metrics.RecordModelLoad("ready")
	d.log.Info("model ready",
		zap.String("path", d.cfg.ModelPath),
		zap.String("runtime", d.runtime.Name()),
		zap.Bool("accelerated", d.device.Accelerated),
		zap.Int("threads", d.device.Threads),
		zap.String("device_reason", d.device.Reason))
	return engine, nil
}
