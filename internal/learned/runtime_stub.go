//go:build !tflite

package learned

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultRuntime returns the runtime compiled into this binary. Builds
// without the tflite tag have none, so the learned tier always reports the
// model unavailable and the cascade falls back to the geometric detectors.
func DefaultRuntime(_ *zap.Logger) Runtime {
	return noRuntime{}
}

type noRuntime struct{}

func (noRuntime) Name() string { return "none" }

func (noRuntime) Load([]byte, Device) (Engine, error) {
	return nil, errors.New("built without a model runtime (rebuild with -tags tflite)")
}
