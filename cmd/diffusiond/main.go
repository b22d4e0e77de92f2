package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"diffusiond/internal/common/fsutil"
	"diffusiond/internal/config"
	"diffusiond/internal/engine"
	"diffusiond/internal/httpapi"
)

// fatalPrefix is the fixed token an external launcher greps for on startup
// failure. Keep the format stable: one line, prefix plus root cause.
const fatalPrefix = "DIFFUSERS_ERROR: "

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, fatalPrefix+engine.RootCause(err))
		os.Exit(1)
	}
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "diffusiond",
		Short:         "OpenAI-Images-API-compatible server for one local diffusion model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd)
		},
	}
	f := root.Flags()
	f.String("addr", envDefault("DIFFUSIOND_ADDR", ":8000"), "HTTP listen address, e.g. :8000")
	f.String("model-path", envDefault("DIFFUSIOND_MODEL_PATH", ""), "Path to a diffusion model directory, DDUF file, or remote model id")
	f.String("served-model-name", envDefault("DIFFUSIOND_SERVED_MODEL_NAME", ""), "Name to serve the model as (defaults to the model path)")
	f.String("config", "", "Optional config file (.yaml/.json/.toml)")
	f.String("log-level", envDefault("DIFFUSIOND_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	f.String("device", "", "Force accelerator: cpu|cuda|mps (default: probe)")
	f.String("worker-bin", "", "Diffusers worker executable")
	f.String("worker-args", "", "Extra worker arguments, comma separated")
	f.String("cors-origins", "", "Enable CORS for these origins, comma separated")
	return root
}

func run(cmd *cobra.Command) error {
	var cfg config.Config
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		c, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	// Flags override file values when set explicitly; env-backed defaults fill
	// the rest.
	flagStr := func(name string, dst *string) {
		if v, _ := cmd.Flags().GetString(name); cmd.Flags().Changed(name) || *dst == "" {
			*dst = v
		}
	}
	flagStr("addr", &cfg.Addr)
	flagStr("model-path", &cfg.ModelPath)
	flagStr("served-model-name", &cfg.ServedModelName)
	flagStr("log-level", &cfg.LogLevel)
	flagStr("device", &cfg.Device)
	flagStr("worker-bin", &cfg.WorkerBin)
	if v, _ := cmd.Flags().GetString("worker-args"); v != "" {
		cfg.WorkerArgs = splitCSV(v)
	}
	if v, _ := cmd.Flags().GetString("cors-origins"); v != "" {
		cfg.CORSEnabled = true
		cfg.CORSOrigins = splitCSV(v)
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.ModelPath == "" {
		return fmt.Errorf("model path is required (--model-path or DIFFUSIOND_MODEL_PATH)")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()

	modelPath, err := fsutil.ExpandHome(cfg.ModelPath)
	if err != nil {
		return err
	}

	backend := engine.NewDiffusersBackend(engine.BackendConfig{
		WorkerBin:  cfg.WorkerBin,
		WorkerArgs: cfg.WorkerArgs,
	}, log)
	loader := engine.NewLoader(backend, log)
	if cfg.Device != "" {
		loader.DeviceOverride = engine.Accelerator(cfg.Device)
	}

	// Synchronous startup load: the process is not ready until this returns.
	pipe, profile, err := loader.Load(context.Background(), modelPath)
	if err != nil {
		return err
	}

	gen := engine.NewGenerator(engine.GeneratorConfig{
		ServedModelName: cfg.ServedModelName,
		MaxQueueDepth:   cfg.MaxQueueDepth,
		MaxWait:         time.Duration(cfg.MaxWaitSeconds) * time.Second,
	}, log)
	gen.Install(pipe, modelPath, profile)

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins,
		[]string{"GET", "POST", "OPTIONS"}, []string{"Content-Type", "X-Log-Level"})

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(gen)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("model", modelPath).Msg("diffusiond listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	baseCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	if err := pipe.Close(); err != nil {
		log.Error().Err(err).Msg("worker stop error")
	}
	return nil
}

// splitCSV splits a comma-separated flag value, trimming blanks.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
