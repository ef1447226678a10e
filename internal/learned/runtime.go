package learned

// Output is a raw output tensor: its shape and row-major values.
type Output struct {
	Shape []int
	Data  []float32
}

// Engine runs inference on a loaded model. Implementations serialize calls
// internally, so one engine may be shared by concurrent detections.
type Engine interface {
	// Infer runs the model on an NHWC float32 input tensor.
	Infer(input []float32) (Output, error)

	// Close releases the model.
	Close() error
}

// Runtime loads model bytes into an Engine for the given device.
type Runtime interface {
	Name() string
	Load(model []byte, dev Device) (Engine, error)
}
