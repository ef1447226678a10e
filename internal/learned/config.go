package learned

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ironsheep/rollcount/internal/detection"
)

// DefaultModelFile is the file name of the cached detection model.
const DefaultModelFile = "rolls-yolov8n.tflite"

// Config tunes the learned detector.
type Config struct {
	// Enabled turns the learned tier on. A disabled detector always reports
	// the model as unavailable.
	Enabled bool `mapstructure:"enabled"`

	// ModelPath is where the model is cached.
	ModelPath string `mapstructure:"model_path"`

	// ModelURL is downloaded to ModelPath on first use when the file is
	// missing. Empty disables downloads.
	ModelURL string `mapstructure:"model_url"`

	// ModelSHA256 is the expected hex digest of the model file. Empty
	// disables the check.
	ModelSHA256 string `mapstructure:"model_sha256"`

	DownloadTimeout time.Duration `mapstructure:"download_timeout"`

	// InputSize is the square input resolution of the model.
	InputSize int `mapstructure:"input_size"`

	// ConfidenceFloor discards boxes scoring below it.
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`

	// IoUThreshold is the non-maximum suppression overlap limit.
	IoUThreshold float64 `mapstructure:"iou_threshold"`

	// UseAccelerator enables the XNNPACK delegate on CPUs that support it.
	UseAccelerator bool `mapstructure:"use_accelerator"`

	// Threads is the CPU thread count; zero means all logical cores.
	Threads int `mapstructure:"threads"`

	Limits detection.Limits `mapstructure:"limits"`
}

// DefaultConfig returns the learned detector defaults. The model is cached
// under the user cache directory.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		ModelPath:       filepath.Join(defaultCacheDir(), "models", DefaultModelFile),
		DownloadTimeout: 5 * time.Minute,
		InputSize:       640,
		ConfidenceFloor: 0.25,
		IoUThreshold:    0.45,
		UseAccelerator:  true,
		Limits:          detection.DefaultLimits(),
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "rollcount")
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var err error
	if c.Enabled && c.ModelPath == "" {
		err = multierr.Append(err, errors.New("model_path must be set when the learned detector is enabled"))
	}
	if c.InputSize < 32 {
		err = multierr.Append(err, errors.Errorf("input_size must be at least 32, got %d", c.InputSize))
	}
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		err = multierr.Append(err, errors.Errorf("confidence_floor must be in [0,1], got %v", c.ConfidenceFloor))
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		err = multierr.Append(err, errors.Errorf("iou_threshold must be in [0,1], got %v", c.IoUThreshold))
	}
	if c.Threads < 0 {
		err = multierr.Append(err, errors.Errorf("threads must not be negative, got %d", c.Threads))
	}
	if c.DownloadTimeout < 0 {
		err = multierr.Append(err, errors.Errorf("download_timeout must not be negative, got %v", c.DownloadTimeout))
	}
	if len(c.ModelSHA256) != 0 && len(c.ModelSHA256) != 64 {
		err = multierr.Append(err, errors.Errorf("model_sha256 must be 64 hex characters, got %d", len(c.ModelSHA256)))
	}
	return err
}
