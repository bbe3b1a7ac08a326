// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/coletivoEITA/matrix-android-sdk/crypto"
	"github.com/coletivoEITA/matrix-android-sdk/notifier"
)

// cryptoGate decides when the crypto service starts relative to the sync
// lifecycle. A start deferred during catch-up remembers whether the
// initial response carried data and replays that answer once the session
// is live again.
type cryptoGate struct {
	svc crypto.Service
	hub *notifier.Hub

	mu sync.Mutex
	// true if the initial sync seen during catch-up was non-empty, making
	// the eventual deferred start an initial-sync start.
	pendingInitialStart bool
}

func (g *cryptoGate) onSyncProcessed(isInitial, isCatchingUp, isEmpty bool) {
	if isInitial {
		if isCatchingUp {
			g.mu.Lock()
			g.pendingInitialStart = !isEmpty
			g.mu.Unlock()
			return
		}
		g.start(true)
		return
	}
	if !isCatchingUp {
		g.mu.Lock()
		asInitial := g.pendingInitialStart
		g.mu.Unlock()
		g.start(asInitial)
	}
}

// start is a no-op when no service is attached or the service is already
// started or starting. Failures are logged, never propagated into the
// sync loop; the pending flag survives a failed start so the retry still
// runs as an initial-sync start.
func (g *cryptoGate) start(isInitialSync bool) {
	if g.svc == nil || g.svc.IsStarted() || g.svc.IsStarting() {
		return
	}
	logrus.WithField("initial_sync", isInitialSync).Info("Starting crypto service")
	g.svc.Start(isInitialSync, func(err error) {
		if err != nil {
			logrus.WithError(err).Error("Crypto service failed to start")
			return
		}
		g.mu.Lock()
		g.pendingInitialStart = false
		g.mu.Unlock()
		g.hub.OnCryptoSyncComplete()
	})
}
