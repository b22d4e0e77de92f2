package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// BackendConfig configures the diffusers worker subprocess backend.
type BackendConfig struct {
	// Worker executable driving the diffusers runtime.
	WorkerBin string
	// Extra arguments appended to every spawn.
	WorkerArgs []string
	// Deadline for the worker's ready event. Model downloads for remote
	// identifiers can be slow, hence the generous default.
	StartTimeout time.Duration
}

const defaultStartTimeout = 10 * time.Minute

// diffusersBackend spawns one worker process per constructed pipeline and
// speaks NDJSON to it over stdin/stdout.
type diffusersBackend struct {
	cfg BackendConfig
	log zerolog.Logger
}

// NewDiffusersBackend constructs a subprocess-backed PipelineBackend.
func NewDiffusersBackend(cfg BackendConfig, log zerolog.Logger) PipelineBackend {
	if cfg.WorkerBin == "" {
		cfg.WorkerBin = "diffusers-worker"
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	return &diffusersBackend{cfg: cfg, log: log}
}

// workerSpec describes one pipeline construction attempt.
type workerSpec struct {
	pipeline  string
	ref       string
	ddufFile  string
	safetyOff bool
	profile   DeviceProfile
}

func (b *diffusersBackend) FromPackaged(ctx context.Context, dir, file string, profile DeviceProfile) (Pipeline, error) {
	return b.spawn(ctx, workerSpec{pipeline: "generic", ref: dir, ddufFile: file, profile: profile})
}

func (b *diffusersBackend) FromAuto(ctx context.Context, ref string, profile DeviceProfile) (Pipeline, error) {
	return b.spawn(ctx, workerSpec{pipeline: "auto", ref: ref, safetyOff: true, profile: profile})
}

func (b *diffusersBackend) FromStableDiffusion(ctx context.Context, ref string, profile DeviceProfile) (Pipeline, error) {
	return b.spawn(ctx, workerSpec{pipeline: "stable_diffusion", ref: ref, safetyOff: true, profile: profile})
}

func (b *diffusersBackend) FromGeneric(ctx context.Context, ref string, profile DeviceProfile) (Pipeline, error) {
	return b.spawn(ctx, workerSpec{pipeline: "generic", ref: ref, profile: profile})
}

// buildWorkerArgs maps a spec onto the worker's command line.
func buildWorkerArgs(spec workerSpec, extra []string) []string {
	args := []string{
		"--model-path", spec.ref,
		"--pipeline", spec.pipeline,
		"--device", string(spec.profile.Accelerator),
		"--dtype", string(spec.profile.Precision),
	}
	if spec.ddufFile != "" {
		args = append(args, "--dduf-file", spec.ddufFile)
	}
	if spec.safetyOff {
		args = append(args, "--no-safety-checker")
	}
	return append(args, extra...)
}

// spawn starts a worker and waits for its ready event, surfacing early exits
// with a stderr tail.
func (b *diffusersBackend) spawn(ctx context.Context, spec workerSpec) (Pipeline, error) {
	cmd := exec.Command(b.cfg.WorkerBin, buildWorkerArgs(spec, b.cfg.WorkerArgs)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	b.log.Info().Str("pipeline", spec.pipeline).Str("ref", spec.ref).Int("pid", cmd.Process.Pid).Msg("worker started")

	wp := &workerPipeline{
		cmd:     cmd,
		stdin:   stdin,
		stderr:  &stderr,
		lineCh:  make(chan string, 4),
		waitErr: make(chan error, 1),
		log:     b.log,
	}
	go wp.readLines(stdout)
	go func() { wp.waitErr <- cmd.Wait() }()

	if err := wp.awaitReady(ctx, b.cfg.StartTimeout); err != nil {
		wp.terminate()
		return nil, err
	}
	b.log.Info().Int("pid", cmd.Process.Pid).Msg("worker ready")
	return wp, nil
}

// workerPipeline is a Pipeline backed by one worker process. Requests are
// strictly request/response over stdio, serialized by mu.
type workerPipeline struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *bytes.Buffer
	lineCh  chan string
	waitErr chan error
	log     zerolog.Logger

	mu      sync.Mutex
	slicing bool
	closed  bool
}

// workerEvent is any NDJSON line the worker emits.
type workerEvent struct {
	Event     string `json:"event,omitempty"`
	OK        bool   `json:"ok,omitempty"`
	Error     string `json:"error,omitempty"`
	Supported bool   `json:"supported,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	RGBA      string `json:"rgba,omitempty"`
}

func (wp *workerPipeline) readLines(r io.Reader) {
	defer close(wp.lineCh)
	br := bufio.NewReaderSize(r, 1<<20)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			wp.lineCh <- line
		}
		if err != nil {
			return
		}
	}
}

func (wp *workerPipeline) awaitReady(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-wp.lineCh:
			if !ok {
				return fmt.Errorf("worker exited before ready; stderr tail: %s", wp.stderrTail())
			}
			var ev workerEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				continue // non-protocol output, ignore
			}
			switch ev.Event {
			case "ready":
				return nil
			case "fatal":
				return errors.New(ev.Error)
			}
		case werr := <-wp.waitErr:
			wp.waitErr <- werr
			return fmt.Errorf("worker exited early: %v; stderr tail: %s", werr, wp.stderrTail())
		case <-timer.C:
			return fmt.Errorf("worker not ready within %s", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// workerInferRequest is the per-image request line sent to the worker.
type workerInferRequest struct {
	Op             string  `json:"op"`
	Prompt         string  `json:"prompt,omitempty"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	GuidanceScale  float64 `json:"guidance_scale,omitempty"`
	Seed           *int64  `json:"seed,omitempty"`
	Device         string  `json:"device,omitempty"`
	Dtype          string  `json:"dtype,omitempty"`
}

func (wp *workerPipeline) Infer(ctx context.Context, params InferParams) (image.Image, error) {
	req := workerInferRequest{
		Op:             "infer",
		Prompt:         params.Prompt,
		NegativePrompt: params.NegativePrompt,
		Width:          params.Width,
		Height:         params.Height,
		Steps:          params.Steps,
		GuidanceScale:  params.GuidanceScale,
	}
	if params.Seeded {
		seed := params.Seed
		req.Seed = &seed
	}
	ev, err := wp.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeFrame(ev)
}

func (wp *workerPipeline) MoveTo(profile DeviceProfile) error {
	_, err := wp.roundTrip(context.Background(), workerInferRequest{
		Op:     "to",
		Device: string(profile.Accelerator),
		Dtype:  string(profile.Precision),
	})
	return err
}

func (wp *workerPipeline) EnableAttentionSlicing() bool {
	ev, err := wp.roundTrip(context.Background(), workerInferRequest{Op: "attention_slicing"})
	if err != nil {
		return false
	}
	wp.mu.Lock()
	wp.slicing = ev.Supported
	wp.mu.Unlock()
	return ev.Supported
}

// roundTrip writes one request line and reads one response line. Once a
// request is written it runs to completion; cancellation is only honored
// before the write.
func (wp *workerPipeline) roundTrip(ctx context.Context, req workerInferRequest) (workerEvent, error) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.closed {
		return workerEvent{}, errors.New("worker closed")
	}
	if err := ctx.Err(); err != nil {
		return workerEvent{}, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return workerEvent{}, err
	}
	if _, err := wp.stdin.Write(append(payload, '\n')); err != nil {
		return workerEvent{}, fmt.Errorf("write to worker: %w", err)
	}
	for {
		line, ok := <-wp.lineCh
		if !ok {
			return workerEvent{}, fmt.Errorf("worker exited; stderr tail: %s", wp.stderrTail())
		}
		var ev workerEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.Event != "" {
			continue // progress or log event, not the response
		}
		if !ev.OK {
			return workerEvent{}, errors.New(ev.Error)
		}
		return ev, nil
	}
}

// decodeFrame turns a raw RGBA response into an image.
func decodeFrame(ev workerEvent) (image.Image, error) {
	pix, err := base64.StdEncoding.DecodeString(ev.RGBA)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if ev.Width <= 0 || ev.Height <= 0 || len(pix) != ev.Width*ev.Height*4 {
		return nil, fmt.Errorf("bad frame: %dx%d with %d bytes", ev.Width, ev.Height, len(pix))
	}
	return &image.NRGBA{
		Pix:    pix,
		Stride: 4 * ev.Width,
		Rect:   image.Rect(0, 0, ev.Width, ev.Height),
	}, nil
}

func (wp *workerPipeline) stderrTail() string {
	tail := wp.stderr.String()
	if len(tail) > 4096 {
		tail = tail[len(tail)-4096:]
	}
	return tail
}

// Close asks the worker to exit by closing stdin, then escalates to SIGTERM
// and finally SIGKILL. Best effort.
func (wp *workerPipeline) Close() error {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return nil
	}
	wp.closed = true
	wp.mu.Unlock()
	_ = wp.stdin.Close()
	select {
	case <-wp.waitErr:
		return nil
	case <-time.After(2 * time.Second):
	}
	wp.terminate()
	return nil
}

func (wp *workerPipeline) terminate() {
	if wp.cmd.Process == nil {
		return
	}
	_ = wp.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-wp.waitErr:
	case <-time.After(2 * time.Second):
		_ = wp.cmd.Process.Kill()
		<-wp.waitErr
	}
}
