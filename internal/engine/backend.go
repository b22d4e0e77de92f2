package engine

import (
	"context"
	"image"
)

// PipelineBackend abstracts the external diffusion runtime. The loader only
// depends on this contract, so the fallback chain and seeding logic are
// testable against a fake that never runs a real model.
//
// FromAuto and FromStableDiffusion construct with the safety checker disabled;
// FromGeneric carries no task-specific assumptions and no safety control.
type PipelineBackend interface {
	// FromPackaged constructs a pipeline from a single-file archive. dir is
	// the containing directory, file the archive name within it.
	FromPackaged(ctx context.Context, dir, file string, profile DeviceProfile) (Pipeline, error)
	// FromAuto constructs via the auto-detect task-type entry point.
	FromAuto(ctx context.Context, ref string, profile DeviceProfile) (Pipeline, error)
	// FromStableDiffusion constructs via the Stable-Diffusion-specific entry point.
	FromStableDiffusion(ctx context.Context, ref string, profile DeviceProfile) (Pipeline, error)
	// FromGeneric constructs via the maximally generic entry point.
	FromGeneric(ctx context.Context, ref string, profile DeviceProfile) (Pipeline, error)
}

// Pipeline is a constructed, ready-to-use generation engine.
type Pipeline interface {
	// Infer produces one raw image for the given parameters.
	Infer(ctx context.Context, params InferParams) (image.Image, error)
	// MoveTo places the pipeline onto the profile's accelerator.
	MoveTo(profile DeviceProfile) error
	// EnableAttentionSlicing turns on memory-efficient attention when the
	// runtime supports it. Returns false when unsupported; never an error.
	EnableAttentionSlicing() bool
	// Close releases the pipeline's weights and runtime buffers.
	Close() error
}

// InferParams are the per-image inference inputs. When Seeded is false the
// runtime uses its own entropy and the result is not reproducible.
type InferParams struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	GuidanceScale  float64
	Seed           int64
	Seeded         bool
}
