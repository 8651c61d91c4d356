// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package config loads the core's own tunables via viper, following the
// teacher's env-first config pattern (CONFMESH_ prefixed env vars,
// optional .env file, key delimiter "__" for nested sections).
package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is every knob cmd/confd needs at startup.
type AppConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`

	MaxConcurrentTranscriptions int64 `mapstructure:"max_concurrent_transcriptions"`

	Deepgram DeepgramConfig `mapstructure:"deepgram"`
	Azure    AzureConfig    `mapstructure:"azure"`

	VADModelPath        string  `mapstructure:"vad_model_path"`
	VADStartThreshold   float64 `mapstructure:"vad_start_threshold"`
	VADReleaseThreshold float64 `mapstructure:"vad_release_threshold"`
	VADHangoverSilenceMs int    `mapstructure:"vad_hangover_silence_ms"`
	VADHardCapSeconds   int     `mapstructure:"vad_hard_cap_seconds"`
}

// DeepgramConfig holds the deepgram-go-sdk adapter's credentials.
type DeepgramConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// AzureConfig holds the Azure Cognitive Services Speech SDK adapter's
// credentials.
type AzureConfig struct {
	SubscriptionKey string `mapstructure:"subscription_key"`
	Region          string `mapstructure:"region"`
	Voice           string `mapstructure:"voice"`
}

// Load builds a viper instance rooted on CONFMESH_ env vars, optionally
// reading a .env file whose path comes from CONFMESH_ENV_PATH (mirroring
// the teacher's ENV_PATH convention).
func Load() (*AppConfig, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetEnvPrefix("CONFMESH")
	v.AutomaticEnv()

	setDefaults(v)

	if path := os.Getenv("CONFMESH_ENV_PATH"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9443)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PATH", "")
	v.SetDefault("MAX_CONCURRENT_TRANSCRIPTIONS", 2)
	v.SetDefault("VAD_MODEL_PATH", "")
	v.SetDefault("VAD_START_THRESHOLD", 0.5)
	v.SetDefault("VAD_RELEASE_THRESHOLD", 0.35)
	v.SetDefault("VAD_HANGOVER_SILENCE_MS", 400)
	v.SetDefault("VAD_HARD_CAP_SECONDS", 20)
}

// HangoverSilence returns the configured hang-over as a time.Duration.
func (c *AppConfig) HangoverSilence() time.Duration {
	return time.Duration(c.VADHangoverSilenceMs) * time.Millisecond
}

// HardCap returns the configured hard cap as a time.Duration.
func (c *AppConfig) HardCap() time.Duration {
	return time.Duration(c.VADHardCapSeconds) * time.Second
}
