// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package errs defines the sentinel errors used for resource-resolution
// failures across the core, so callers can test with errors.Is instead of
// string matching.
package errs

import "errors"

var (
	// ErrCallNotFound is returned when a call ID has no active Call.
	ErrCallNotFound = errors.New("confmesh: call not found")

	// ErrHandleNotRegistered is returned when a Handle is no longer (or
	// never was) registered with the mixer/router it was looked up in.
	ErrHandleNotRegistered = errors.New("confmesh: handle not registered")

	// ErrParticipantNotFound is returned when a call has no participant
	// matching the given handle or user ID.
	ErrParticipantNotFound = errors.New("confmesh: participant not found")

	// ErrGateSaturated is returned when the transcription gate has no
	// spare permits. Gate.Submit logs a warning and also returns it, so
	// callers can distinguish the case.
	ErrGateSaturated = errors.New("confmesh: transcription gate saturated")
)
