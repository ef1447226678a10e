// Package learned runs a pretrained object-detection model over rack photos.
//
// The model is a process-wide resource with an explicit lifecycle:
// uninitialized, loading, then ready or failed. The first Detect (or
// Acquire) reads the cached model file, downloading it when it is missing
// and a URL is configured, and loads it into the runtime. Concurrent first
// callers wait for that single load. A failure is final and every later
// call reports ErrModelUnavailable, which the cascade treats as "try the
// next strategy".
//
// The TensorFlow Lite runtime is compiled in with the tflite build tag.
// Without it the detector always reports the model unavailable.
package learned
