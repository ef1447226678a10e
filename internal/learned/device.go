package learned

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Device describes where inference runs.
type Device struct {
	// Accelerated is true when the XNNPACK delegate should be used.
	Accelerated bool `json:"accelerated"`

	// Threads is the number of CPU threads given to the interpreter.
	Threads int `json:"threads"`

	// Reason explains the choice, for logs.
	Reason string `json:"reason"`
}

// SelectDevice picks accelerated compute when it is enabled and the CPU
// has the vector extensions XNNPACK needs (AVX2 on amd64, ASIMD on arm64);
// otherwise general compute with the configured thread count.
func SelectDevice(cfg Config) Device {
	threads := cfg.Threads
	if threads <= 0 {
		threads = cpuid.CPU.LogicalCores
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if !cfg.UseAccelerator {
		return Device{Threads: threads, Reason: "accelerator disabled"}
	}
	ok, feature := vectorSupport()
	if !ok {
		return Device{Threads: threads, Reason: "cpu lacks " + feature}
	}
	return Device{Accelerated: true, Threads: threads, Reason: "cpu supports " + feature}
}

func vectorSupport() (bool, string) {
	switch runtime.GOARCH {
	case "amd64":
		return cpuid.CPU.Supports(cpuid.AVX2), "avx2"
	case "arm64":
		return cpuid.CPU.Supports(cpuid.ASIMD), "asimd"
	default:
		return false, "a supported architecture"
	}
}
