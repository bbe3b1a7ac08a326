// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

// Package storage defines the store contract consumed by the sync engine.
// Two instances exist at runtime: the active store and the archive store
// for left rooms. The contract is identical; the lifetimes are disjoint.
package storage

import (
	"github.com/coletivoEITA/matrix-android-sdk/types"
)

// Store is the key/value persistence abstraction holding rooms, users,
// summaries, account data projections and the sync continuation token.
// Writes happen on the ingestion worker only; reads may come from any
// goroutine, so implementations must be safe for concurrent readers.
type Store interface {
	// Room returns the room aggregate for the given ID, or nil.
	Room(roomID string) *types.Room
	// StoreRoom inserts or replaces a room.
	StoreRoom(room *types.Room)
	// DeleteRoom removes a room and its summary, events and receipts.
	DeleteRoom(roomID string)
	// Rooms returns every room held by the store.
	Rooms() []*types.Room

	// Summary returns the cached summary for a room, or nil if it was never
	// computed.
	Summary(roomID string) *types.RoomSummary
	// Summaries returns every cached summary.
	Summaries() []*types.RoomSummary
	// StoreSummary inserts or replaces a summary.
	StoreSummary(summary *types.RoomSummary)

	// User returns the known user with the given ID, or nil.
	User(userID string) *types.User
	// StoreUser inserts or replaces a user.
	StoreUser(user *types.User)

	// RoomEvents returns the stored events of a room, oldest first.
	RoomEvents(roomID string) []*types.Event
	// StoreRoomEvent appends an event to a room's stored timeline.
	StoreRoomEvent(event *types.Event)
	// DeleteRoomEvent removes a single event from a room's stored timeline.
	DeleteRoomEvent(roomID, eventID string)
	// LatestEvent returns the most recent stored event of a room, or nil.
	LatestEvent(roomID string) *types.Event

	// Receipts returns the read receipts stored for a room.
	Receipts(roomID string) []types.Receipt
	// StoreReceipt records a read receipt for a room.
	StoreReceipt(roomID string, receipt types.Receipt)

	// IgnoredUserIDs returns the persisted ignored-user list. nil means the
	// list was never synced, as opposed to synced and empty.
	IgnoredUserIDs() []string
	// SetIgnoredUserIDs replaces the persisted ignored-user list.
	SetIgnoredUserIDs(userIDs []string)

	// DirectChatRooms returns the authoritative m.direct index mapping
	// participant user ID to room IDs. nil means the entry was never set.
	DirectChatRooms() map[string][]string
	// SetDirectChatRooms replaces the authoritative m.direct index.
	SetDirectChatRooms(index map[string][]string)

	// URLPreviewEnabled reports the account's URL preview flag. Defaults to
	// enabled when the account data entry was never seen.
	URLPreviewEnabled() bool
	// SetURLPreviewEnabled stores the URL preview flag.
	SetURLPreviewEnabled(enabled bool)

	// EventStreamToken returns the persisted continuation token.
	EventStreamToken() string
	// SetEventStreamToken stages the continuation token. It becomes durable
	// on the next Commit.
	SetEventStreamToken(token string)

	// Commit flushes staged writes. The persisted continuation token never
	// advances past data that has not been committed.
	Commit() error
	// Clear drops all data.
	Clear()
	// Close releases the store. Further calls are undefined.
	Close() error
}
