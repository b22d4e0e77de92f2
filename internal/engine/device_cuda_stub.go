//go:build !(linux && cgo)

package engine

// cudaAvailable always reports false where NVML is unavailable.
func cudaAvailable() bool { return false }
