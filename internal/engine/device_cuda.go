//go:build linux && cgo

package engine

import "github.com/NVIDIA/go-nvml/pkg/nvml"

// cudaAvailable reports whether at least one NVIDIA device is visible via NVML.
func cudaAvailable() bool {
	if nvml.Init() != nvml.SUCCESS {
		return false
	}
	defer func() { _ = nvml.Shutdown() }()
	n, ret := nvml.DeviceGetCount()
	return ret == nvml.SUCCESS && n > 0
}
