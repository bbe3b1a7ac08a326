// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

// Package api declares the transport boundary the sync engine consumes.
// Wire transport, HTTP retries and authentication live behind these
// interfaces; the engine only issues the two outbound requests the
// reconciliation path needs.
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coletivoEITA/matrix-android-sdk/types"
)

// LeftRoomsFilter is the fixed minimal-payload filter used for the one-off
// archive sync request.
const LeftRoomsFilter = `{"room":{"timeline":{"limit":1},"include_leave":true}}`

// SyncClient issues sync requests outside of the regular sync loop. The
// engine uses it for the single archived-rooms round trip.
type SyncClient interface {
	// SyncFromToken performs one sync request. An empty since token asks for
	// a full snapshot. The filter is passed through verbatim.
	SyncFromToken(ctx context.Context, since string, serverTimeout time.Duration, filter string) (*types.SyncResponse, error)
}

// AccountDataClient writes account data entries back to the server. The
// engine uses it for the direct-chat index.
type AccountDataClient interface {
	SetAccountData(ctx context.Context, userID, dataType string, content json.RawMessage) error
}
