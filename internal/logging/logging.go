// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package logging provides the sugared, structured-field logger every
// component in this module takes at construction time instead of reaching
// for a global.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var zapLogFallbackStderr = os.Stderr

// Logger is the structured logging surface used throughout the core. It
// mirrors the sugared call shape (Infow/Warnw/Errorw/Debugw plus the
// printf-style variants) relied on by every component.
type Logger interface {
	Debugw(msg string, kv ...interface{})
	Infow(msg string, kv ...interface{})
	Warnw(msg string, kv ...interface{})
	Errorw(msg string, kv ...interface{})
	Info(args ...interface{})
	Warnf(format string, args ...interface{})
	With(kv ...interface{}) Logger
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// Option configures a Logger built by New.
type Option func(*options)

type options struct {
	name  string
	path  string
	level string
}

// Name sets the logger/service name attached to every entry.
func Name(name string) Option { return func(o *options) { o.name = name } }

// Path sets the directory lumberjack rotates log files into. Empty means
// stderr-only.
func Path(path string) Option { return func(o *options) { o.path = path } }

// Level sets the minimum level ("debug", "info", "warn", "error").
func Level(level string) Option { return func(o *options) { o.level = level } }

// New builds a Logger backed by zap, with file rotation handled by
// lumberjack when Path is set.
func New(opts ...Option) Logger {
	o := options{name: "confmesh-core", level: "info"}
	for _, opt := range opts {
		opt(&o)
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(o.level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	var ws zapcore.WriteSyncer
	if o.path != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   o.path + "/" + o.name + ".log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	} else {
		ws = zapcore.AddSync(zapLogFallbackStderr)
	}

	core := zapcore.NewCore(enc, ws, lvl)
	base := zap.New(core).Sugar().Named(o.name)
	return &zapLogger{s: base}
}

func (l *zapLogger) Debugw(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l *zapLogger) Info(args ...interface{})             { l.s.Info(args...) }
func (l *zapLogger) Warnf(format string, args ...interface{}) {
	l.s.Warnf(format, args...)
}
func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}
func (l *zapLogger) Sync() error { return l.s.Sync() }

// NewNop returns a Logger that discards everything, for tests that take a
// Logger but don't assert on its output.
func NewNop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}
