// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

import (
	"encoding/json"

	"github.com/matrix-org/gomatrixserverlib/spec"
)

// Credentials are the immutable identity of the session. They are owned by
// the sync engine and never mutated after construction.
type Credentials struct {
	UserID      string
	DeviceID    string
	AccessToken string
	HomeServer  string
}

// User is the presence-derived view of one user across all rooms.
type User struct {
	UserID           string         `json:"user_id"`
	DisplayName      string         `json:"displayname,omitempty"`
	AvatarURL        string         `json:"avatar_url,omitempty"`
	Presence         string         `json:"presence,omitempty"`
	LastActiveAgo    int64          `json:"last_active_ago,omitempty"`
	CurrentlyActive  bool           `json:"currently_active,omitempty"`
	StatusMsg        string         `json:"status_msg,omitempty"`
	LatestPresenceTS spec.Timestamp `json:"-"`
}

// UserFromPresenceContent decodes the content of an m.presence event. The
// sender is authoritative for the user ID when present, and the event's
// origin timestamp records when this presence view was produced.
func UserFromPresenceContent(ev *Event) (*User, error) {
	var user User
	if err := json.Unmarshal(ev.Content, &user); err != nil {
		return nil, err
	}
	if ev.Sender != "" {
		user.UserID = ev.Sender
	}
	user.LatestPresenceTS = ev.OriginServerTS
	return &user, nil
}

// Receipt is one read receipt stored alongside a room's events.
type Receipt struct {
	RoomID    string
	EventID   string
	UserID    string
	Type      string
	Timestamp spec.Timestamp
}
