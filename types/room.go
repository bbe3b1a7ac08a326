// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/tidwall/gjson"
)

// RoomMember is the membership-derived view of one user in a room.
type RoomMember struct {
	UserID      string
	Membership  string
	DisplayName string
	AvatarURL   string
	// Sender of the membership event. A leave written by another user is a
	// kick; a leave written by the user themselves is voluntary.
	Sender string
}

// IsActive reports whether the member currently counts towards the room
// (joined or invited).
func (m *RoomMember) IsActive() bool {
	return m.Membership == spec.Join || m.Membership == spec.Invite
}

// Room is the per-room aggregate: a live timeline, the membership-derived
// state snapshot and the archived flag. A room lives in exactly one store
// at a time; moving it between stores is a copy, never a shared reference.
type Room struct {
	ID string

	mu          sync.RWMutex
	isLeft      bool
	members     map[string]*RoomMember
	timeline    []*Event
	inviteState []*Event
	tags        map[string]json.RawMessage
	name        string
	topic       string
	prevBatch   string

	highlightCount    int
	notificationCount int
	unreadCount       int
}

// NewRoom creates an empty room aggregate.
func NewRoom(roomID string) *Room {
	return &Room{
		ID:      roomID,
		members: make(map[string]*RoomMember),
		tags:    make(map[string]json.RawMessage),
	}
}

// SetLeft marks the room as archived (or not).
func (r *Room) SetLeft(left bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isLeft = left
}

// IsLeft reports whether the room is archived.
func (r *Room) IsLeft() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isLeft
}

// ApplyStateEvent folds one state event into the room snapshot and reports
// whether anything changed.
func (r *Room) ApplyStateEvent(ev *Event) bool {
	if ev == nil || !ev.IsState() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case EventTypeMember:
		member := &RoomMember{
			UserID:      *ev.StateKey,
			Membership:  ev.Membership(),
			DisplayName: gjson.GetBytes(ev.Content, "displayname").String(),
			AvatarURL:   gjson.GetBytes(ev.Content, "avatar_url").String(),
			Sender:      ev.Sender,
		}
		prev, ok := r.members[member.UserID]
		if ok && prev.Membership == member.Membership && prev.DisplayName == member.DisplayName && prev.AvatarURL == member.AvatarURL {
			return false
		}
		r.members[member.UserID] = member
		return true
	case EventTypeName:
		name := gjson.GetBytes(ev.Content, "name").String()
		if r.name == name {
			return false
		}
		r.name = name
		return true
	case EventTypeTopic:
		topic := gjson.GetBytes(ev.Content, "topic").String()
		if r.topic == topic {
			return false
		}
		r.topic = topic
		return true
	}
	return true
}

// AppendTimelineEvent appends a live event to the timeline. State events in
// the timeline also update the state snapshot.
func (r *Room) AppendTimelineEvent(ev *Event) {
	if ev == nil {
		return
	}
	if ev.IsState() {
		r.ApplyStateEvent(ev)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeline = append(r.timeline, ev)
}

// TimelineEvents returns a copy of the live timeline, oldest first.
func (r *Room) TimelineEvents() []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Event, len(r.timeline))
	copy(out, r.timeline)
	return out
}

// LatestEvent returns the most recent timeline event, or nil.
func (r *Room) LatestEvent() *Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.timeline) == 0 {
		return nil
	}
	return r.timeline[len(r.timeline)-1]
}

// SetPrevBatch records the backwards pagination token for the timeline.
func (r *Room) SetPrevBatch(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token != "" {
		r.prevBatch = token
	}
}

// PrevBatch returns the backwards pagination token.
func (r *Room) PrevBatch() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prevBatch
}

// FlushTimeline drops the live timeline after a limited sync gap. State
// derived from earlier events is kept; only the event list resets.
func (r *Room) FlushTimeline() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeline = nil
}

// ClearInviteState drops the stripped invite state once the invitation is
// resolved by a join or leave.
func (r *Room) ClearInviteState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inviteState = nil
}

// HasInviteState reports whether the room still carries a pending invite.
func (r *Room) HasInviteState() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.inviteState) > 0
}

// ApplyInviteState folds the stripped invite state into the room.
func (r *Room) ApplyInviteState(events []Event) {
	for i := range events {
		ev := events[i]
		if ev.IsState() {
			r.ApplyStateEvent(&ev)
		}
		r.mu.Lock()
		r.inviteState = append(r.inviteState, &ev)
		r.mu.Unlock()
	}
}

// InviteStateEvents returns the stripped invite state, in arrival order.
func (r *Room) InviteStateEvents() []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Event, len(r.inviteState))
	copy(out, r.inviteState)
	return out
}

// Member returns the membership view for the given user, or nil.
func (r *Room) Member(userID string) *RoomMember {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[userID]
}

// Members returns all known members, sorted by user ID for stable output.
func (r *Room) Members() []*RoomMember {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*RoomMember, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ActiveMembers returns the joined and invited members, sorted by user ID.
func (r *Room) ActiveMembers() []*RoomMember {
	members := r.Members()
	out := members[:0]
	for _, m := range members {
		if m.IsActive() {
			out = append(out, m)
		}
	}
	return out
}

// SetTags replaces the room tags read from per-room account data.
func (r *Room) SetTags(tags map[string]json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = tags
	if r.tags == nil {
		r.tags = make(map[string]json.RawMessage)
	}
}

// HasTags reports whether the room carries any explicit tag.
func (r *Room) HasTags() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tags) > 0
}

// Name returns the m.room.name value, if any.
func (r *Room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// SetUnreadCounts stores the server-computed counters and reports whether
// they changed.
func (r *Room) SetUnreadCounts(highlight, notification int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.highlightCount == highlight && r.notificationCount == notification {
		return false
	}
	r.highlightCount = highlight
	r.notificationCount = notification
	return true
}

// NotificationCount returns the server-computed unread notification count.
func (r *Room) NotificationCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notificationCount
}

// HighlightCount returns the server-computed highlight count.
func (r *Room) HighlightCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.highlightCount
}

// RefreshUnreadCounter folds the latest notification counter into the
// room's local unread counter and reports whether it moved.
func (r *Room) RefreshUnreadCounter() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unreadCount == r.notificationCount {
		return false
	}
	r.unreadCount = r.notificationCount
	return true
}

// UnreadCount returns the locally tracked unread counter.
func (r *Room) UnreadCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unreadCount
}

// IsDirectChatInvitation applies the single-membership heuristic to a
// pending invite: the stripped state carries a membership event targeting
// the session user, flagged is_direct by the sender, or it is the only
// membership event beside the inviter's own.
func (r *Room) IsDirectChatInvitation(selfUserID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memberEvents := 0
	for _, ev := range r.inviteState {
		if ev.Type != EventTypeMember {
			continue
		}
		memberEvents++
		if ev.StateKey != nil && *ev.StateKey == selfUserID && ev.IsDirect() {
			return true
		}
	}
	return memberEvents == 1
}

// InviteSender returns the first sender seen in the stripped invite state,
// used to attribute a direct chat to its inviter.
func (r *Room) InviteSender() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ev := range r.inviteState {
		if ev.Sender != "" {
			return ev.Sender
		}
	}
	return ""
}

// Snapshot returns a deep copy of the room, used when migrating a room
// between the active and archive stores. The copy shares no mutable state
// with the original.
func (r *Room) Snapshot() *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewRoom(r.ID)
	c.isLeft = r.isLeft
	c.name = r.name
	c.topic = r.topic
	c.prevBatch = r.prevBatch
	c.highlightCount = r.highlightCount
	c.notificationCount = r.notificationCount
	c.unreadCount = r.unreadCount
	for id, m := range r.members {
		member := *m
		c.members[id] = &member
	}
	for _, ev := range r.timeline {
		event := *ev
		c.timeline = append(c.timeline, &event)
	}
	for _, ev := range r.inviteState {
		event := *ev
		c.inviteState = append(c.inviteState, &event)
	}
	for k, v := range r.tags {
		c.tags[k] = v
	}
	return c
}
