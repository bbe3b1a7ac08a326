// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

import "encoding/json"

// SyncResponse is one incremental or initial snapshot of server-side
// changes since a given continuation token. Only the sections the engine
// branches on are typed; unknown sections are dropped at decode time.
type SyncResponse struct {
	NextBatch   string              `json:"next_batch"`
	AccountData EventBatch          `json:"account_data,omitempty"`
	Presence    EventBatch          `json:"presence,omitempty"`
	ToDevice    EventBatch          `json:"to_device,omitempty"`
	Rooms       *RoomsSyncResponse  `json:"rooms,omitempty"`
	Groups      *GroupsSyncResponse `json:"groups,omitempty"`
}

// EventBatch wraps the `{"events": [...]}` envelope used by several sync
// sections.
type EventBatch struct {
	Events []Event `json:"events,omitempty"`
}

// RoomsSyncResponse carries the per-room deltas, keyed by room ID.
// A room can legitimately appear in both invite and leave in the same
// response; the engine's fixed processing order tolerates that race.
type RoomsSyncResponse struct {
	Join   map[string]*RoomSyncDelta    `json:"join,omitempty"`
	Invite map[string]*InvitedRoomSync  `json:"invite,omitempty"`
	Leave  map[string]*RoomSyncDelta    `json:"leave,omitempty"`
}

// RoomSyncDelta is the join-shaped room payload. The leave section reuses
// the same shape to carry the final events up to the departure.
type RoomSyncDelta struct {
	State               EventBatch           `json:"state,omitempty"`
	Timeline            TimelineBatch        `json:"timeline,omitempty"`
	Ephemeral           EventBatch           `json:"ephemeral,omitempty"`
	AccountData         EventBatch           `json:"account_data,omitempty"`
	UnreadNotifications *UnreadNotifications `json:"unread_notifications,omitempty"`
}

// TimelineBatch is the timeline section of a room delta.
type TimelineBatch struct {
	Events    []Event `json:"events,omitempty"`
	Limited   bool    `json:"limited,omitempty"`
	PrevBatch string  `json:"prev_batch,omitempty"`
}

// InvitedRoomSync carries the stripped state of a pending invite.
type InvitedRoomSync struct {
	InviteState EventBatch `json:"invite_state,omitempty"`
}

// UnreadNotifications are the server-computed per-room counters.
type UnreadNotifications struct {
	HighlightCount    int `json:"highlight_count,omitempty"`
	NotificationCount int `json:"notification_count,omitempty"`
}

// GroupsSyncResponse carries community membership deltas, keyed by group ID.
type GroupsSyncResponse struct {
	Invite map[string]*InvitedGroupSync  `json:"invite,omitempty"`
	Join   map[string]json.RawMessage    `json:"join,omitempty"`
	Leave  map[string]json.RawMessage    `json:"leave,omitempty"`
}

// InvitedGroupSync describes a pending group invitation.
type InvitedGroupSync struct {
	Profile *GroupProfile `json:"profile,omitempty"`
	Inviter string        `json:"inviter,omitempty"`
}

// GroupProfile is the publicised profile of a group.
type GroupProfile struct {
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// IsEmpty reports whether the response carries no room, account data,
// to-device, group or presence payload at all. An empty response must not
// advance the persisted continuation token.
func (r *SyncResponse) IsEmpty() bool {
	if r == nil {
		return true
	}
	if len(r.AccountData.Events) > 0 || len(r.ToDevice.Events) > 0 || len(r.Presence.Events) > 0 {
		return false
	}
	if r.Rooms != nil {
		if len(r.Rooms.Join) > 0 || len(r.Rooms.Invite) > 0 || len(r.Rooms.Leave) > 0 {
			return false
		}
	}
	if r.Groups != nil {
		if len(r.Groups.Invite) > 0 || len(r.Groups.Join) > 0 || len(r.Groups.Leave) > 0 {
			return false
		}
	}
	return true
}
