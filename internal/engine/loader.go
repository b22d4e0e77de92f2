package engine

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Loader resolves a model path and constructs a pipeline on the selected
// device. It keeps the constructed pipeline so repeated loads of the same
// path are no-ops; loading a different path replaces the prior pipeline.
type Loader struct {
	backend PipelineBackend
	log     zerolog.Logger

	// Force a specific accelerator instead of probing; empty means auto.
	DeviceOverride Accelerator

	mu      sync.Mutex
	cur     Pipeline
	curPath string
	profile DeviceProfile
}

// NewLoader constructs a Loader over the given backend.
func NewLoader(backend PipelineBackend, log zerolog.Logger) *Loader {
	return &Loader{backend: backend, log: log}
}

// Load resolves modelPath, selects device and precision, and constructs a
// pipeline. Packaged archives get a single construction attempt; directories
// and remote identifiers go through the strategy fallback chain. Any
// unrecoverable failure is returned as a model load error.
func (l *Loader) Load(ctx context.Context, modelPath string) (Pipeline, DeviceProfile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cur != nil && l.curPath == modelPath {
		l.log.Info().Str("model", modelPath).Msg("model already loaded")
		return l.cur, l.profile, nil
	}

	profile := l.selectDevice()
	l.log.Info().
		Str("device", string(profile.Accelerator)).
		Str("precision", string(profile.Precision)).
		Str("model", modelPath).
		Msg("loading model")

	src := ResolveSource(modelPath)
	var pipe Pipeline
	switch src.Kind {
	case SourcePackaged:
		dir := filepath.Dir(src.Path)
		file := filepath.Base(src.Path)
		l.log.Info().Str("dir", dir).Str("file", file).Msg("loading model from packaged archive")
		p, err := l.backend.FromPackaged(ctx, dir, file, profile)
		if err != nil {
			// Packaged archives never fall back to other strategies.
			return nil, profile, ErrModelLoad("failed to load packaged archive "+file, err)
		}
		pipe = p
	case SourceDirectory:
		l.log.Info().Str("dir", src.Path).Msg("loading model from local directory")
		p, err := l.construct(ctx, src.Path, profile)
		if err != nil {
			return nil, profile, err
		}
		pipe = p
	default:
		p, err := l.construct(ctx, src.Path, profile)
		if err != nil {
			return nil, profile, err
		}
		pipe = p
	}

	if err := pipe.MoveTo(profile); err != nil {
		_ = pipe.Close()
		return nil, profile, ErrModelLoad("failed to move pipeline to "+string(profile.Accelerator), err)
	}
	if pipe.EnableAttentionSlicing() {
		l.log.Debug().Msg("attention slicing enabled")
	}

	if l.cur != nil {
		_ = l.cur.Close()
	}
	l.cur = pipe
	l.curPath = modelPath
	l.profile = profile
	l.log.Info().Str("device", string(profile.Accelerator)).Msg("model loaded")
	return pipe, profile, nil
}

// construct tries the three construction strategies in strict order; the
// first success short-circuits and the last failure is surfaced.
func (l *Loader) construct(ctx context.Context, ref string, profile DeviceProfile) (Pipeline, error) {
	strategies := []struct {
		name string
		fn   func() (Pipeline, error)
	}{
		{"auto_text2image", func() (Pipeline, error) { return l.backend.FromAuto(ctx, ref, profile) }},
		{"stable_diffusion", func() (Pipeline, error) { return l.backend.FromStableDiffusion(ctx, ref, profile) }},
		{"generic", func() (Pipeline, error) { return l.backend.FromGeneric(ctx, ref, profile) }},
	}
	var lastErr error
	for _, s := range strategies {
		pipe, err := s.fn()
		if err == nil {
			return pipe, nil
		}
		l.log.Warn().Str("strategy", s.name).Err(err).Msg("pipeline construction failed, trying next strategy")
		lastErr = err
	}
	return nil, ErrModelLoad("all pipeline construction strategies failed for "+ref, lastErr)
}

func (l *Loader) selectDevice() DeviceProfile {
	if l.DeviceOverride != "" {
		return ProfileFor(l.DeviceOverride)
	}
	return DetectDevice()
}
