// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Command confd is the conference core's process entrypoint: it loads
// config, wires the STT/TTS adapters, and serves the WebSocket endpoint
// every participant connects through.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/confmesh/core/internal/call"
	"github.com/confmesh/core/internal/config"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/manager"
	"github.com/confmesh/core/internal/router"
	"github.com/confmesh/core/internal/stt"
	"github.com/confmesh/core/internal/stt/deepgram"
	"github.com/confmesh/core/internal/tts"
	"github.com/confmesh/core/internal/tts/azure"
	"github.com/confmesh/core/internal/vad"
	"github.com/confmesh/core/internal/wire"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "confd: config load failed: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Name("confd"), logging.Path(cfg.LogPath), logging.Level(cfg.LogLevel))
	defer logger.Sync()

	var transcriber stt.Transcriber
	if cfg.Deepgram.APIKey != "" {
		dg, err := deepgram.New(deepgram.DefaultOptions(cfg.Deepgram.APIKey), logger)
		if err != nil {
			logger.Warnw("confd: deepgram adapter unavailable", "error", err.Error())
		} else {
			transcriber = dg
		}
	}
	if transcriber == nil {
		logger.Warnw("confd: no STT credentials configured, transcription disabled")
		transcriber = noopTranscriber{}
	}

	var synth tts.Synthesizer
	if cfg.Azure.SubscriptionKey != "" {
		az, err := azure.New(azure.Options{
			SubscriptionKey: cfg.Azure.SubscriptionKey,
			Region:          cfg.Azure.Region,
			DefaultVoice:    cfg.Azure.Voice,
		}, logger)
		if err != nil {
			logger.Warnw("confd: azure tts adapter unavailable", "error", err.Error())
		} else {
			synth = az
		}
	}

	vadCfg := vad.DefaultConfig()
	vadCfg.ModelPath = cfg.VADModelPath
	vadCfg.StartThreshold = float32(cfg.VADStartThreshold)
	vadCfg.ReleaseThreshold = float32(cfg.VADReleaseThreshold)
	vadCfg.HangoverSilence = cfg.HangoverSilence()
	vadCfg.HardCap = cfg.HardCap()

	registry := router.NewCapabilityRegistry(map[string]router.Capabilities{
		"default": {AudioInput: true, AudioOutput: true},
		"text-only-agent": {TextInput: true, TextOutput: true},
	})

	mgr := manager.New(manager.Options{
		Registry:         registry,
		Transcriber:      transcriber,
		Synthesizer:      synth,
		MaxConcurrentSTT: cfg.MaxConcurrentTranscriptions,
		VADConfig:        vadCfg,
		NewStage2:        newStage2(vadCfg, logger),
		CallConfig:       call.DefaultConfig(),
		Logger:           logger,
	})

	srv := wire.New(mgr, logger)

	mux := http.NewServeMux()
	mux.Handle("/v1/confmesh/connect", srv)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Infow("confd: listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("confd: server error", "error", err.Error())
		}
	}()

	<-ctx.Done()
	logger.Infow("confd: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("confd: shutdown error", "error", err.Error())
	}
}

// newStage2 builds the production Stage-2 constructor, falling back to
// an always-failing constructor (degrading every stream to passthrough)
// when no model path is configured rather than panicking at startup.
func newStage2(cfg vad.Config, logger logging.Logger) func(vad.Config) (vad.Stage2, error) {
	if cfg.ModelPath == "" {
		return vad.NewFailingStage2(fmt.Errorf("confd: no vad model path configured"))
	}
	return vad.NewSileroStage2
}

type noopTranscriber struct{}

func (noopTranscriber) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	return stt.Result{}, fmt.Errorf("confd: no transcriber configured")
}
