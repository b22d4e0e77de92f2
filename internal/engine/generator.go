package engine

import (
	"bytes"
	"context"
	"image/png"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"diffusiond/pkg/types"
)

// Defaults applied when corresponding GeneratorConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
)

// GeneratorConfig encapsulates all tunables for Generator construction.
type GeneratorConfig struct {
	// Externally advertised model name. Defaults to the loaded model path.
	ServedModelName string
	// Maximum queued requests before backpressure triggers.
	MaxQueueDepth int
	// Maximum time a request may wait for the inference slot.
	MaxWait time.Duration
}

// Generator owns the one loaded pipeline for the process lifetime and drives
// per-request generation. Inference is serialized: a single in-flight slot
// guarded by a bounded FIFO queue.
type Generator struct {
	log     zerolog.Logger
	maxWait time.Duration

	genCh   chan struct{} // size 1: single in-flight generation
	queueCh chan struct{} // buffered: queue slots

	mu          sync.RWMutex
	pipe        Pipeline
	modelPath   string
	servedName  string
	profile     DeviceProfile
	imagesTotal uint64
	startTime   time.Time
}

// NewGenerator constructs a Generator from GeneratorConfig.
func NewGenerator(cfg GeneratorConfig, log zerolog.Logger) *Generator {
	depth := cfg.MaxQueueDepth
	if depth <= 0 {
		depth = defaultMaxQueueDepth
	}
	wait := cfg.MaxWait
	if wait <= 0 {
		wait = defaultMaxWait
	}
	return &Generator{
		log:        log,
		maxWait:    wait,
		genCh:      make(chan struct{}, 1),
		queueCh:    make(chan struct{}, depth),
		servedName: cfg.ServedModelName,
		startTime:  time.Now(),
	}
}

// Install sets the loaded pipeline and its identifiers. Called exactly once,
// at startup, after the loader succeeds; there is no runtime model swap.
func (g *Generator) Install(pipe Pipeline, modelPath string, profile DeviceProfile) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pipe = pipe
	g.modelPath = modelPath
	g.profile = profile
	if g.servedName == "" {
		g.servedName = modelPath
	}
}

// Ready reports whether a pipeline has been installed.
func (g *Generator) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pipe != nil
}

// ModelLoaded is Ready under the name the health endpoint uses.
func (g *Generator) ModelLoaded() bool { return g.Ready() }

// CheckModel rejects a request whose model id matches neither the served
// name nor the loaded path.
func (g *Generator) CheckModel(requested string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.servedName == "" {
		return nil
	}
	if requested == g.servedName || requested == g.modelPath {
		return nil
	}
	return ErrModelMismatch(requested, g.servedName)
}

// Generate runs the whole batch for one validated request and returns PNG
// byte buffers in index order. With a seed S, image i uses seed S+i; without
// one, every image draws independent entropy from the runtime.
func (g *Generator) Generate(ctx context.Context, req types.ImageGenerationRequest) ([][]byte, error) {
	if err := g.CheckModel(req.Model); err != nil {
		return nil, err
	}
	g.mu.RLock()
	pipe := g.pipe
	g.mu.RUnlock()
	if pipe == nil {
		return nil, ErrEngineNotReady()
	}
	width, height, err := ParseSize(req.Size)
	if err != nil {
		return nil, err
	}

	release, err := g.beginGeneration(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	n := req.N
	if n < 1 {
		n = 1
	}
	g.log.Info().Int("n", n).Int("width", width).Int("height", height).Msg("generating images")

	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		params := InferParams{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Width:          width,
			Height:         height,
			Steps:          req.NumInferenceSteps,
			GuidanceScale:  req.GuidanceScale,
		}
		if req.Seed != nil {
			params.Seed = *req.Seed + int64(i)
			params.Seeded = true
		}
		img, err := pipe.Infer(ctx, params)
		if err != nil {
			return nil, ErrGeneration("inference", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, ErrGeneration("png encode", err)
		}
		out = append(out, buf.Bytes())
	}

	g.mu.Lock()
	g.imagesTotal += uint64(n)
	g.mu.Unlock()
	g.log.Info().Int("n", n).Msg("generated images")
	return out, nil
}

// Models lists the identifiers clients may target: the served name, plus the
// loaded path when it differs.
func (g *Generator) Models() []types.ModelObject {
	g.mu.RLock()
	defer g.mu.RUnlock()
	now := time.Now().Unix()
	var out []types.ModelObject
	if g.servedName != "" {
		out = append(out, types.ModelObject{ID: g.servedName, Object: "model", Created: now, OwnedBy: "diffusers"})
	}
	if g.modelPath != "" && g.modelPath != g.servedName {
		out = append(out, types.ModelObject{ID: g.modelPath, Object: "model", Created: now, OwnedBy: "diffusers"})
	}
	return out
}

// Status builds a detailed status response for /status.
func (g *Generator) Status() types.StatusResponse {
	g.mu.RLock()
	defer g.mu.RUnlock()
	state := "loading"
	if g.pipe != nil {
		state = "ready"
	}
	now := time.Now()
	return types.StatusResponse{
		State:           state,
		ModelPath:       g.modelPath,
		ServedModelName: g.servedName,
		Device:          string(g.profile.Accelerator),
		Precision:       string(g.profile.Precision),
		QueueLen:        len(g.queueCh),
		Inflight:        len(g.genCh),
		MaxQueueDepth:   cap(g.queueCh),
		ImagesTotal:     g.imagesTotal,
		UptimeSeconds:   int64(now.Sub(g.startTime).Seconds()),
		ServerTimeUnix:  now.Unix(),
	}
}
