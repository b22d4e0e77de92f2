package engine

import "runtime"

// Accelerator identifies the compute device a pipeline runs on.
type Accelerator string

const (
	AcceleratorCPU   Accelerator = "cpu"
	AcceleratorCUDA  Accelerator = "cuda"
	AcceleratorMetal Accelerator = "mps"
)

// Precision is the numeric precision weights are loaded in.
type Precision string

const (
	PrecisionFloat32 Precision = "float32"
	PrecisionFloat16 Precision = "float16"
)

// DeviceProfile pairs an accelerator with the precision it implies.
type DeviceProfile struct {
	Accelerator Accelerator
	Precision   Precision
}

// Probes are package vars so tests can fake hardware availability.
var (
	cudaProbe  = cudaAvailable
	metalProbe = metalAvailable
)

// DetectDevice probes accelerators in fixed priority CUDA, Metal, CPU.
// Either GPU selects float16; CPU selects float32.
func DetectDevice() DeviceProfile {
	switch {
	case cudaProbe():
		return DeviceProfile{Accelerator: AcceleratorCUDA, Precision: PrecisionFloat16}
	case metalProbe():
		return DeviceProfile{Accelerator: AcceleratorMetal, Precision: PrecisionFloat16}
	default:
		return DeviceProfile{Accelerator: AcceleratorCPU, Precision: PrecisionFloat32}
	}
}

// ProfileFor returns the device profile for a forced accelerator choice.
func ProfileFor(acc Accelerator) DeviceProfile {
	if acc == AcceleratorCPU {
		return DeviceProfile{Accelerator: AcceleratorCPU, Precision: PrecisionFloat32}
	}
	return DeviceProfile{Accelerator: acc, Precision: PrecisionFloat16}
}

func metalAvailable() bool {
	return runtime.GOOS == "darwin"
}
