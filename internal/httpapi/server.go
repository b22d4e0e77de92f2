package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"diffusiond/internal/engine"
	"diffusiond/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Models() []types.ModelObject
	Status() types.StatusResponse
	Generate(ctx context.Context, req types.ImageGenerationRequest) ([][]byte, error)
	Ready() bool
	ModelLoaded() bool
}

// serverBaseCtx is a process-level context that can be canceled on shutdown.
// Defaults to Background if not set.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context that is canceled when either a or b is done.
// The returned cancel func must be called to release the goroutine when handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		}
	}()
	return ctx, cancel
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.HealthResponse{
			Status:      "healthy",
			ModelLoaded: svc.ModelLoaded(),
		})
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	r.Get("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.ModelsResponse{Object: "list", Data: svc.Models()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Post("/v1/images/generations", handleGenerations(svc))

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

func handleGenerations(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ImageGenerationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		applyDefaults(&req)
		if msg := validate(req); msg != "" {
			writeJSONError(w, http.StatusBadRequest, msg)
			return
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Str("path", r.URL.Path).Str("model", req.Model).Int("n", req.N)
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("generation start")
		}

		// Join server base context with request context so shutdown cancels
		// queued work too.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		images, err := svc.Generate(joinedCtx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := statusForError(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("generation_queue")
			}
			writeJSONError(w, status, err.Error())
			if lvl >= LevelInfo && zlog != nil {
				z := zlog.Info().Int("status", status).Dur("dur", time.Since(start))
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Err(err).Msg("generation end")
			}
			return
		}

		data := make([]types.ImageData, 0, len(images))
		for _, img := range images {
			data = append(data, types.ImageData{B64JSON: base64.StdEncoding.EncodeToString(img)})
		}
		resp := types.ImageGenerationResponse{Created: time.Now().Unix(), Data: data}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
		ObserveGeneration(len(images), time.Since(start))
		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Int("status", 200).Int("images", len(images)).Dur("dur", time.Since(start))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("generation end")
		}
	}
}

// applyDefaults fills OpenAI-compatible defaults for omitted fields.
func applyDefaults(req *types.ImageGenerationRequest) {
	if req.N == 0 {
		req.N = 1
	}
	if req.Size == "" {
		req.Size = "512x512"
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = "b64_json"
	}
	if req.NumInferenceSteps == 0 {
		req.NumInferenceSteps = 50
	}
	if req.GuidanceScale == 0 {
		req.GuidanceScale = 7.5
	}
}

// validate enforces the request bounds. Returns an error message or "".
func validate(req types.ImageGenerationRequest) string {
	if strings.TrimSpace(req.Prompt) == "" {
		return "prompt is required"
	}
	if req.N < 1 || req.N > 10 {
		return "n must be between 1 and 10"
	}
	if req.NumInferenceSteps < 1 || req.NumInferenceSteps > 150 {
		return "num_inference_steps must be between 1 and 150"
	}
	if req.GuidanceScale < 1.0 || req.GuidanceScale > 20.0 {
		return "guidance_scale must be between 1.0 and 20.0"
	}
	switch req.ResponseFormat {
	case "b64_json":
	case "url":
		return "URL response format is not supported. Use 'b64_json' instead."
	default:
		return "response_format must be 'b64_json'"
	}
	return ""
}

// statusForError maps well-known engine errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case engine.IsInvalidSize(err):
		return http.StatusBadRequest
	case engine.IsModelMismatch(err):
		// Distinct "wrong server" status, matching the original API.
		return http.StatusMisdirectedRequest
	case engine.IsEngineNotReady(err):
		return http.StatusServiceUnavailable
	case engine.IsTooBusy(err):
		return http.StatusTooManyRequests
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
