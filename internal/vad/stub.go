// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package vad

// stubStage2 is a deterministic Stage2 driven entirely by Stage-1 energy,
// built by NewStubStage2 for tests so VAD state-machine and
// sentence-buffer behavior can be exercised without an ONNX model file.
type stubStage2 struct {
	threshold float64
}

// NewStubStage2 builds a newStage2 constructor for New whose "neural"
// probability is just energy-above-threshold, for deterministic tests.
func NewStubStage2(threshold float64) func(Config) (Stage2, error) {
	return func(Config) (Stage2, error) {
		return &stubStage2{threshold: threshold}, nil
	}
}

func (s *stubStage2) Probability(frame []float32) (float32, error) {
	var sumSq float64
	for _, f := range frame {
		v := float64(f) * 32768.0
		sumSq += v * v
	}
	n := len(frame)
	if n == 0 {
		return 0, nil
	}
	rms := sumSq / float64(n)
	if rms >= s.threshold*s.threshold {
		return 1, nil
	}
	return 0, nil
}

func (s *stubStage2) Reset() {}

func (s *stubStage2) Close() error { return nil }

// NewFailingStage2 is a newStage2 constructor that always fails,
// exercising the passthrough degrade path (§4.1 initialize_vad).
func NewFailingStage2(err error) func(Config) (Stage2, error) {
	return func(Config) (Stage2, error) {
		return nil, err
	}
}
