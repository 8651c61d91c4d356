// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package handle provides the opaque, stable participant/source identifier
// used throughout the core. It carries no ordering and is only ever
// compared or hashed.
package handle

import "github.com/google/uuid"

// Handle is an opaque 128-bit identifier minted on creation. It is a plain
// value (not a pointer) so it can be copied freely and used as a map key.
type Handle uuid.UUID

// Zero is the unset Handle value, never minted by New.
var Zero Handle

// New mints a fresh random Handle.
func New() Handle {
	return Handle(uuid.New())
}

// String renders the handle's canonical UUID form, for logging.
func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// IsZero reports whether h is the unset value.
func (h Handle) IsZero() bool {
	return h == Zero
}
