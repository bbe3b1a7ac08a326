// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

// Package crypto defines the narrow contract the sync engine holds against
// the end-to-end encryption subsystem. The ratchet implementation itself
// lives elsewhere; the engine only sequences its startup and routes events
// through it.
package crypto

import (
	"github.com/coletivoEITA/matrix-android-sdk/types"
)

// Service is the encryption subsystem as seen by the sync engine.
type Service interface {
	// IsStarted reports whether the subsystem is fully started.
	IsStarted() bool
	// IsStarting reports whether a start attempt is already in flight.
	IsStarting() bool
	// Start brings the subsystem up. done is invoked exactly once with the
	// outcome; a nil error means the key machinery is ready.
	Start(isInitialSync bool, done func(error))
	// OnSyncCompleted is invoked after every structurally processed sync
	// response so the subsystem can track device list changes.
	OnSyncCompleted(response *types.SyncResponse, fromToken string, isCatchingUp bool)
	// DecryptEvent attempts to decrypt an event. A failed attempt returns a
	// *types.DecryptionError describing the per-event condition.
	DecryptEvent(event *types.Event, timelineID string) (*types.DecryptionResult, *types.DecryptionError)
}
