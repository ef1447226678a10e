//go:build tflite

package learned

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"
	"go.uber.org/zap"

	"github.com/ironsheep/rollcount/internal/logging"
)

// DefaultRuntime returns the TensorFlow Lite runtime.
func DefaultRuntime(logger *zap.Logger) Runtime {
	return tfliteRuntime{log: logging.OrNop(logger).Named("tflite")}
}

type tfliteRuntime struct {
	log *zap.Logger
}

func (tfliteRuntime) Name() string { return "tflite" }

func (r tfliteRuntime) Load(model []byte, dev Device) (Engine, error) {
	m := tflite.NewModel(model)
	if m == nil {
		return nil, errors.New("cannot load TensorFlow Lite model")
	}

	options := tflite.NewInterpreterOptions()
	if dev.Accelerated {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, dev.Threads-1))})
		if delegate == nil {
			r.log.Warn("failed to create XNNPACK delegate, falling back to CPU threads",
				zap.Int("threads", dev.Threads))
			options.SetNumThread(dev.Threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(dev.Threads)
	}
	options.SetErrorReporter(func(msg string, _ any) {
		r.log.Error("tflite error", zap.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(m, options)
	if interpreter == nil {
		options.Delete()
		m.Delete()
		return nil, errors.New("cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		m.Delete()
		return nil, errors.New("tensor allocation failed")
	}

	return &tfliteEngine{model: m, options: options, interpreter: interpreter}, nil
}

type tfliteEngine struct {
	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
}

func (e *tfliteEngine) Infer(input []float32) (Output, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.interpreter == nil {
		return Output{}, errors.New("engine closed")
	}

	in := e.interpreter.GetInputTensor(0)
	if in == nil {
		return Output{}, errors.New("model has no input tensor")
	}
	buf := in.Float32s()
	if len(buf) != len(input) {
		return Output{}, errors.Errorf("input tensor holds %d values, got %d", len(buf), len(input))
	}
	copy(buf, input)

	if status := e.interpreter.Invoke(); status != tflite.OK {
		return Output{}, errors.Errorf("invoke failed: %v", status)
	}

	out := e.interpreter.GetOutputTensor(0)
	if out == nil {
		return Output{}, errors.New("model has no output tensor")
	}
	shape := make([]int, out.NumDims())
	for i := range shape {
		shape[i] = out.Dim(i)
	}
	values := out.Float32s()
	data := make([]float32, len(values))
	copy(data, values)

	return Output{Shape: shape, Data: data}, nil
}

func (e *tfliteEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.interpreter != nil {
		e.interpreter.Delete()
		e.options.Delete()
		e.model.Delete()
		e.interpreter = nil
	}
	return nil
}
