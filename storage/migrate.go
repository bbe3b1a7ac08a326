// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package storage

import (
	"github.com/pkg/errors"
)

// ErrRoomNotFound is returned when a migration source does not hold the
// requested room.
var ErrRoomNotFound = errors.New("storage: room not found")

// MigrateRoom moves a room from one store to another as a copy-then-delete:
// the destination receives deep copies of the room, its summary, events and
// receipts, and only then is the source entry deleted. A room ID is never
// live in both stores at once because the inserted copy is marked archived
// exactly when moving into an archive destination via markLeft.
func MigrateRoom(roomID string, from, to Store, markLeft bool) error {
	room := from.Room(roomID)
	if room == nil {
		return errors.Wrap(ErrRoomNotFound, roomID)
	}

	archived := room.Snapshot()
	archived.SetLeft(markLeft)
	to.StoreRoom(archived)

	if summary := from.Summary(roomID); summary != nil {
		to.StoreSummary(summary.Snapshot())
	}

	// The summary alone is enough to render the room in a recents list, but
	// carrying the events and receipts over keeps history usable later.
	for _, ev := range from.RoomEvents(roomID) {
		event := *ev
		to.StoreRoomEvent(&event)
	}
	for _, receipt := range from.Receipts(roomID) {
		to.StoreReceipt(roomID, receipt)
	}

	from.DeleteRoom(roomID)
	return nil
}
