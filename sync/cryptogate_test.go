// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coletivoEITA/matrix-android-sdk/notifier"
	"github.com/coletivoEITA/matrix-android-sdk/types"
)

func TestCryptoStartsAfterLiveInitialSync(t *testing.T) {
	h := newTestHarness(t)
	h.process(joinResponse("t1", "!a:test.org", messageEvent(t, "$1", testExtraID, "hi")), "", false)

	require.Equal(t, []bool{true}, h.crypto.startedWith())
}

func TestCryptoStartDeferredDuringCatchup(t *testing.T) {
	h := newTestHarness(t)

	// Initial sync seen while replaying a backlog defers the start.
	h.process(joinResponse("t1", "!a:test.org", messageEvent(t, "$1", testExtraID, "hi")), "", true)
	require.Empty(t, h.crypto.startedWith())

	// Still catching up, still deferred.
	h.process(joinResponse("t2", "!a:test.org", messageEvent(t, "$2", testExtraID, "more")), "t1", true)
	require.Empty(t, h.crypto.startedWith())

	// First live response starts crypto, remembering that the deferred
	// initial sync carried data.
	h.process(joinResponse("t3", "!a:test.org", messageEvent(t, "$3", testExtraID, "live")), "t2", false)
	require.Equal(t, []bool{true}, h.crypto.startedWith())
}

func TestCryptoDeferredEmptyInitialStartsAsIncremental(t *testing.T) {
	h := newTestHarness(t)

	// An empty initial response during catch-up means there is nothing for
	// an initial-sync crypto start to process.
	h.process(&types.SyncResponse{NextBatch: "t1"}, "", true)
	require.Empty(t, h.crypto.startedWith())

	h.process(joinResponse("t2", "!a:test.org", messageEvent(t, "$1", testExtraID, "live")), "t1", false)
	require.Equal(t, []bool{false}, h.crypto.startedWith())
}

func TestCryptoSyncCompletedForwardedEveryResponse(t *testing.T) {
	h := newTestHarness(t)
	h.process(joinResponse("t1", "!a:test.org", messageEvent(t, "$1", testExtraID, "hi")), "", false)
	h.process(joinResponse("t2", "!a:test.org", messageEvent(t, "$2", testExtraID, "more")), "t1", false)

	h.crypto.mu.Lock()
	defer h.crypto.mu.Unlock()
	assert.Equal(t, 2, h.crypto.syncCalls)
}

func TestCryptoStartIsNoOpWhenAlreadyStarted(t *testing.T) {
	h := newTestHarness(t)
	h.crypto.started = true

	h.process(joinResponse("t1", "!a:test.org", messageEvent(t, "$1", testExtraID, "hi")), "", false)
	assert.Empty(t, h.crypto.startedWith())
}

func TestCryptoStartIsNoOpWhenStarting(t *testing.T) {
	h := newTestHarness(t)
	h.crypto.starting = true

	h.process(joinResponse("t1", "!a:test.org", messageEvent(t, "$1", testExtraID, "hi")), "", false)
	assert.Empty(t, h.crypto.startedWith())
}

func TestCryptoStartSuccessDispatchesCryptoSyncComplete(t *testing.T) {
	h := newTestHarness(t)
	h.process(joinResponse("t1", "!a:test.org", messageEvent(t, "$1", testExtraID, "hi")), "", false)

	h.crypto.mu.Lock()
	require.Len(t, h.crypto.doneFns, 1)
	done := h.crypto.doneFns[0]
	h.crypto.mu.Unlock()

	done(nil)
	h.listener.waitFor(t, "crypto_sync_complete")
}

func TestCryptoStartFailureIsOnlyLogged(t *testing.T) {
	h := newTestHarness(t)
	h.process(joinResponse("t1", "!a:test.org", messageEvent(t, "$1", testExtraID, "hi")), "", false)

	h.crypto.mu.Lock()
	require.Len(t, h.crypto.doneFns, 1)
	done := h.crypto.doneFns[0]
	h.crypto.mu.Unlock()

	done(errors.New("olm init failed"))
	h.process(joinResponse("t2", "!a:test.org", messageEvent(t, "$2", testExtraID, "more")), "t1", false)
	h.listener.waitFor(t, "chunk:t1>t2")
	assert.False(t, h.listener.has("crypto_sync_complete"))
}

func TestCryptoFailedStartRetriesAsInitial(t *testing.T) {
	h := newTestHarness(t)

	// Non-empty initial sync during catch-up defers an initial-sync start.
	h.process(joinResponse("t1", "!a:test.org", messageEvent(t, "$1", testExtraID, "hi")), "", true)
	h.process(joinResponse("t2", "!a:test.org", messageEvent(t, "$2", testExtraID, "live")), "t1", false)
	require.Equal(t, []bool{true}, h.crypto.startedWith())

	// A failed start must not downgrade the retry to an incremental start.
	h.crypto.failLastStart(t, errors.New("olm init failed"))
	h.process(joinResponse("t3", "!a:test.org", messageEvent(t, "$3", testExtraID, "more")), "t2", false)
	assert.Equal(t, []bool{true, true}, h.crypto.startedWith())
}

func TestGateWithoutCryptoService(t *testing.T) {
	gate := &cryptoGate{svc: nil, hub: notifier.NewHub(8)}
	// Must not panic with no service attached.
	gate.onSyncProcessed(true, false, false)
	gate.onSyncProcessed(false, false, true)
}
