// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"encoding/json"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/coletivoEITA/matrix-android-sdk/storage"
	"github.com/coletivoEITA/matrix-android-sdk/types"
)

// departureKind classifies how the session user left a room. Kicks and
// bans are never archived.
type departureKind int

const (
	departureLeave departureKind = iota
	departureKick
	departureBan
)

// processJoinedRoom folds one joined-room delta into the active store.
func (e *Engine) processJoinedRoom(roomID string, delta *types.RoomSyncDelta, isInitial bool) error {
	if delta == nil {
		return nil
	}

	room := e.store.Room(roomID)
	isNew := room == nil
	if isNew {
		room = types.NewRoom(roomID)
	}
	wasInvited := room.HasInviteState()

	// Rejoining an archived room makes the archive copy stale.
	if e.archive.Room(roomID) != nil {
		e.archive.DeleteRoom(roomID)
	}
	room.SetLeft(false)

	if wasInvited {
		room.ClearInviteState()
	}

	for i := range delta.State.Events {
		ev := &delta.State.Events[i]
		ev.RoomID = roomID
		room.ApplyStateEvent(ev)
	}

	if delta.Timeline.Limited && !isInitial {
		room.FlushTimeline()
		e.hub.OnRoomFlush(roomID)
	}
	room.SetPrevBatch(delta.Timeline.PrevBatch)

	summary := e.store.Summary(roomID)
	if summary == nil {
		summary = types.NewRoomSummary(roomID, nil)
	}

	for i := range delta.Timeline.Events {
		ev := &delta.Timeline.Events[i]
		ev.RoomID = roomID
		e.decryptIfNeeded(ev, roomID)
		room.AppendTimelineEvent(ev)
		e.store.StoreRoomEvent(ev)
		summary.SetLatestEvent(ev)
		e.hub.OnLiveEvent(ev)
	}

	e.processRoomEphemeral(room, summary, delta.Ephemeral.Events)
	e.processRoomAccountData(room, summary, delta.AccountData.Events)

	if delta.UnreadNotifications != nil {
		changed := room.SetUnreadCounts(
			delta.UnreadNotifications.HighlightCount,
			delta.UnreadNotifications.NotificationCount,
		)
		if room.RefreshUnreadCounter() || changed {
			e.hub.OnNotificationCountUpdate(roomID)
		}
	}

	e.store.StoreRoom(room)
	e.store.StoreSummary(summary)
	e.storeMemberProfiles(room)

	switch {
	case isNew:
		e.hub.OnNewRoom(roomID)
	case wasInvited:
		e.hub.OnJoinRoom(roomID)
	default:
		e.hub.OnRoomInternalUpdate(roomID)
	}
	if isInitial {
		e.hub.OnRoomInitialSyncComplete(roomID)
	}
	return nil
}

// processInvitedRoom records a pending invitation as a room shell carrying
// only the stripped invite state.
func (e *Engine) processInvitedRoom(roomID string, invited *types.InvitedRoomSync, staged *stagedDirectChats) error {
	if invited == nil {
		return nil
	}

	room := e.store.Room(roomID)
	isNew := room == nil
	if isNew {
		room = types.NewRoom(roomID)
	}

	// An invitation back into an archived room resurrects it; the archive
	// copy is stale from here on.
	if e.archive.Room(roomID) != nil {
		e.archive.DeleteRoom(roomID)
	}

	for i := range invited.InviteState.Events {
		invited.InviteState.Events[i].RoomID = roomID
	}
	room.ApplyInviteState(invited.InviteState.Events)
	e.store.StoreRoom(room)

	// Invitations flagged direct are staged so the whole response resolves
	// to one m.direct upload no matter how many invites it carried.
	if inviter := room.InviteSender(); inviter != "" && inviter != e.creds.UserID && room.IsDirectChatInvitation(e.creds.UserID) {
		staged.add(inviter, roomID)
	}

	if isNew {
		e.hub.OnNewRoom(roomID)
	} else {
		e.hub.OnRoomInternalUpdate(roomID)
	}

	for i := range invited.InviteState.Events {
		e.hub.OnLiveEvent(&invited.InviteState.Events[i])
	}
	return nil
}

// processLeftRoom resolves the departure kind and either archives the room
// or drops it. A leave arriving in the same response as the invite wins
// because the leave section applies last.
func (e *Engine) processLeftRoom(roomID string, delta *types.RoomSyncDelta, isInitial bool) error {
	if delta == nil {
		return nil
	}

	room := e.store.Room(roomID)
	if room == nil {
		room = types.NewRoom(roomID)
		e.store.StoreRoom(room)
	}

	kind := resolveDepartureKind(room, delta, e.creds.UserID)

	for i := range delta.State.Events {
		ev := &delta.State.Events[i]
		ev.RoomID = roomID
		room.ApplyStateEvent(ev)
	}
	for i := range delta.Timeline.Events {
		ev := &delta.Timeline.Events[i]
		ev.RoomID = roomID
		room.AppendTimelineEvent(ev)
	}
	room.ClearInviteState()
	room.SetPrevBatch(delta.Timeline.PrevBatch)

	if kind == departureLeave && e.cfg.ArchiveLeftRooms {
		if err := storage.MigrateRoom(roomID, e.store, e.archive, true); err != nil {
			return errors.Wrapf(err, "archiving room %s", roomID)
		}
		roomsArchived.Inc()
	} else {
		e.store.DeleteRoom(roomID)
	}

	if !isInitial {
		if kind == departureLeave {
			e.hub.OnLeaveRoom(roomID)
		} else {
			e.hub.OnRoomKick(roomID)
		}
	}
	return nil
}

// resolveDepartureKind inspects the session user's membership before the
// delta is applied, then lets the delta's own membership events override
// it. A leave written by another sender is a kick.
func resolveDepartureKind(room *types.Room, delta *types.RoomSyncDelta, selfUserID string) departureKind {
	kind := departureLeave
	if member := room.Member(selfUserID); member != nil {
		kind = classifyMembership(member.Membership, member.Sender, selfUserID, kind)
	}
	for _, batch := range [][]types.Event{delta.State.Events, delta.Timeline.Events} {
		for i := range batch {
			ev := &batch[i]
			if ev.Type != types.EventTypeMember || ev.StateKey == nil || *ev.StateKey != selfUserID {
				continue
			}
			kind = classifyMembership(ev.Membership(), ev.Sender, selfUserID, kind)
		}
	}
	return kind
}

func classifyMembership(membership, sender, selfUserID string, current departureKind) departureKind {
	switch membership {
	case spec.Ban:
		return departureBan
	case spec.Leave:
		if sender != "" && sender != selfUserID {
			return departureKick
		}
		return departureLeave
	}
	return current
}

// processRoomEphemeral handles receipts and typing notifications. Typing
// is transient and only relayed, receipts are persisted. The caller's
// summary is mutated in place so its later store is the only write.
func (e *Engine) processRoomEphemeral(room *types.Room, summary *types.RoomSummary, events []types.Event) {
	for i := range events {
		ev := &events[i]
		ev.RoomID = room.ID
		switch ev.Type {
		case types.EventTypeReceipt:
			if senderIDs := e.storeReceipts(room.ID, summary, ev); len(senderIDs) > 0 {
				e.hub.OnReceiptEvent(room.ID, senderIDs)
			}
		case types.EventTypeTyping:
			e.hub.OnLiveEvent(ev)
		}
	}
}

// storeReceipts unpacks one m.receipt event. The content nests event ID,
// receipt type and user ID in that order.
func (e *Engine) storeReceipts(roomID string, summary *types.RoomSummary, ev *types.Event) []string {
	var senderIDs []string
	gjson.ParseBytes(ev.Content).ForEach(func(eventID, byType gjson.Result) bool {
		byType.ForEach(func(receiptType, byUser gjson.Result) bool {
			byUser.ForEach(func(userID, data gjson.Result) bool {
				e.store.StoreReceipt(roomID, types.Receipt{
					RoomID:    roomID,
					EventID:   eventID.String(),
					UserID:    userID.String(),
					Type:      receiptType.String(),
					Timestamp: spec.Timestamp(data.Get("ts").Int()),
				})
				senderIDs = append(senderIDs, userID.String())
				if userID.String() == e.creds.UserID && receiptType.String() == "m.read" {
					summary.ReadReceiptEventID = eventID.String()
				}
				return true
			})
			return true
		})
		return true
	})
	return senderIDs
}

// processRoomAccountData applies per-room account data: tags and the
// fully-read marker.
func (e *Engine) processRoomAccountData(room *types.Room, summary *types.RoomSummary, events []types.Event) {
	for i := range events {
		ev := &events[i]
		ev.RoomID = room.ID
		switch ev.Type {
		case types.EventTypeTag:
			tags := make(map[string]json.RawMessage)
			gjson.GetBytes(ev.Content, "tags").ForEach(func(key, value gjson.Result) bool {
				tags[key.String()] = json.RawMessage(value.Raw)
				return true
			})
			room.SetTags(tags)
			e.hub.OnRoomTagEvent(room.ID)
		case types.EventTypeReadMarker:
			markerID := gjson.GetBytes(ev.Content, "event_id").String()
			if markerID != "" && markerID != summary.ReadMarkerEventID {
				summary.ReadMarkerEventID = markerID
				e.hub.OnReadMarkerEvent(room.ID)
			}
		}
	}
}

// processGroups relays community membership transitions. Group state is
// not persisted locally, listeners refetch profiles on demand; like the
// other sections, the initial sync stays silent.
func (e *Engine) processGroups(groups *types.GroupsSyncResponse, isInitial bool) {
	for groupID, invited := range groups.Invite {
		log := logrus.WithField("group_id", groupID)
		if invited != nil && invited.Profile != nil {
			log = log.WithField("group_name", invited.Profile.Name)
		}
		log.Debug("Group invitation received")
		if !isInitial {
			e.hub.OnNewGroupInvitation(groupID)
		}
	}
	if isInitial {
		return
	}
	for groupID := range groups.Join {
		e.hub.OnJoinGroup(groupID)
	}
	for groupID := range groups.Leave {
		e.hub.OnLeaveGroup(groupID)
	}
}

// processPresence updates user profiles from presence events. The session
// user's own presence doubles as a profile refresh.
func (e *Engine) processPresence(events []types.Event, isInitial bool) {
	for i := range events {
		ev := &events[i]
		user, err := types.UserFromPresenceContent(ev)
		if err != nil {
			logrus.WithError(err).WithField("sender", ev.Sender).Warn("Discarding malformed presence event")
			continue
		}
		e.store.StoreUser(user)
		if ev.Sender == e.creds.UserID && !isInitial {
			e.hub.OnAccountInfoUpdate(user)
		}
		if !isInitial {
			e.hub.OnPresenceUpdate(ev, user)
		}
	}
}

// storeMemberProfiles backfills the user table from room membership so
// profile lookups work for users never seen in presence.
func (e *Engine) storeMemberProfiles(room *types.Room) {
	for _, member := range room.ActiveMembers() {
		if e.store.User(member.UserID) != nil {
			continue
		}
		e.store.StoreUser(&types.User{
			UserID:      member.UserID,
			DisplayName: member.DisplayName,
			AvatarURL:   member.AvatarURL,
		})
	}
}
