// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

// RoomSummary is the derived, cached view of a room's latest event and read
// markers. It is recomputed whenever an event is appended to or deleted
// from the room. A room without a summary simply has not been summarised.
type RoomSummary struct {
	RoomID             string
	LatestEvent        *Event
	ReadReceiptEventID string
	ReadMarkerEventID  string
	UnreadEventsCount  int
}

// NewRoomSummary builds a summary seeded with the latest received event.
func NewRoomSummary(roomID string, latest *Event) *RoomSummary {
	return &RoomSummary{RoomID: roomID, LatestEvent: latest}
}

// SetLatestEvent replaces the cached latest event.
func (s *RoomSummary) SetLatestEvent(ev *Event) {
	s.LatestEvent = ev
}

// Snapshot returns a copy of the summary for cross-store migration.
func (s *RoomSummary) Snapshot() *RoomSummary {
	c := *s
	if s.LatestEvent != nil {
		ev := *s.LatestEvent
		c.LatestEvent = &ev
	}
	return &c
}
