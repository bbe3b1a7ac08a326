// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

// Package notifier fans engine state changes out to an arbitrary number of
// listeners. Every notification follows the same delivery contract: the
// privileged crypto observer first, suppression for rooms mid-archive,
// then a locked snapshot of the listener set delivered on one dedicated
// goroutine.
package notifier

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/coletivoEITA/matrix-android-sdk/types"
)

type kind int

const (
	kindStoreReady kind = iota
	kindInitialSyncComplete
	kindLiveEventsChunkProcessed
	kindCryptoSyncComplete
	kindPresenceUpdate
	kindAccountInfoUpdate
	kindLiveEvent
	kindEventDecrypted
	kindEventSentState
	kindToDeviceEvent
	kindNewRoom
	kindJoinRoom
	kindRoomInitialSync
	kindRoomInternalUpdate
	kindNotificationCountUpdate
	kindLeaveRoom
	kindRoomKick
	kindRoomFlush
	kindRoomTag
	kindReadMarker
	kindReceipt
	kindIgnoredUsers
	kindPushRules
	kindDirectChats
	kindGroupInvitation
	kindGroupJoin
	kindGroupLeave
	kindGroupProfile
	kindGroupRooms
	kindGroupUsers
)

// notification is the tagged variant carried through the single dispatch
// path. Only the fields relevant to the kind are set.
type notification struct {
	kind      kind
	roomID    string
	groupID   string
	event     *types.Event
	user      *types.User
	fromToken string
	toToken   string
	senderIDs []string
}

// Hub is the thread-safe listener set and its delivery loop.
type Hub struct {
	mu        sync.Mutex
	listeners map[Listener]struct{}
	crypto    Listener
	// suppress reports whether events for a room must be dropped because
	// the room is currently being fetched into the archive.
	suppress func(roomID string) bool

	jobs   chan func()
	quit   chan struct{}
	closed bool
	done   chan struct{}

	// set once the initial sync completed, replayed to late registrations
	initialSyncToken *string
}

// NewHub creates a hub and starts its delivery goroutine.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 512
	}
	h := &Hub{
		listeners: make(map[Listener]struct{}),
		jobs:      make(chan func(), queueSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go h.deliveryLoop()
	return h
}

func (h *Hub) deliveryLoop() {
	defer close(h.done)
	for {
		select {
		case job := <-h.jobs:
			job()
		case <-h.quit:
			for {
				select {
				case job := <-h.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

// SetCryptoListener installs the privileged internal observer. It is
// notified synchronously on the ingestion worker, before any external
// listener, so decryption always happens first.
func (h *Hub) SetCryptoListener(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.crypto = l
}

// SetSuppression installs the mid-archive suppression predicate.
func (h *Hub) SetSuppression(fn func(roomID string) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.suppress = fn
}

// AddListener registers a listener, de-duplicated by identity. If the
// initial sync already completed, the completion is replayed to the new
// listener.
func (h *Hub) AddListener(l Listener) {
	if l == nil {
		return
	}
	h.mu.Lock()
	h.listeners[l] = struct{}{}
	replay := h.initialSyncToken
	closed := h.closed
	h.mu.Unlock()

	if replay != nil && !closed {
		token := *replay
		h.enqueue(func() {
			deliver(l, notification{kind: kindInitialSyncComplete, toToken: token})
		})
	}
}

// RemoveListener unregisters a listener.
func (h *Hub) RemoveListener(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, l)
}

// ListenerCount returns the number of registered listeners.
func (h *Hub) ListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Close stops the delivery loop after draining queued notifications. The
// listener set is cleared; registered listeners remain valid objects that
// simply never hear from the hub again.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.listeners = make(map[Listener]struct{})
	close(h.quit)
	h.mu.Unlock()
	<-h.done
}

// enqueue never closes or sends on a closed channel: the jobs channel
// stays open for the hub's lifetime and the quit case releases senders
// parked on a full queue during Close.
func (h *Hub) enqueue(job func()) {
	// The queue is large enough that the ingestion worker only blocks here
	// under sustained listener stalls, which keeps ordering intact rather
	// than dropping notifications.
	select {
	case h.jobs <- job:
	case <-h.quit:
	}
}

func (h *Hub) snapshot() []Listener {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Listener, 0, len(h.listeners))
	for l := range h.listeners {
		out = append(out, l)
	}
	return out
}

// publish is the single dispatch path shared by every notification kind.
func (h *Hub) publish(n notification) {
	h.mu.Lock()
	crypto := h.crypto
	suppress := h.suppress
	if n.kind == kindInitialSyncComplete {
		token := n.toToken
		h.initialSyncToken = &token
	}
	h.mu.Unlock()

	if crypto != nil {
		deliver(crypto, n)
	}

	if n.roomID != "" && suppress != nil && suppress(n.roomID) {
		return
	}

	snapshot := h.snapshot()
	if len(snapshot) == 0 {
		return
	}
	h.enqueue(func() {
		for _, l := range snapshot {
			deliver(l, n)
		}
	})
}

// deliver routes one notification to one listener, catching panics so one
// misbehaving listener cannot block delivery to the rest.
func deliver(l Listener, n notification) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"kind":    n.kind,
				"room_id": n.roomID,
				"panic":   r,
			}).Error("Sync listener panicked during delivery")
		}
	}()

	switch n.kind {
	case kindStoreReady:
		l.OnStoreReady()
	case kindInitialSyncComplete:
		l.OnInitialSyncComplete(n.toToken)
	case kindLiveEventsChunkProcessed:
		l.OnLiveEventsChunkProcessed(n.fromToken, n.toToken)
	case kindCryptoSyncComplete:
		l.OnCryptoSyncComplete()
	case kindPresenceUpdate:
		l.OnPresenceUpdate(n.event, n.user)
	case kindAccountInfoUpdate:
		l.OnAccountInfoUpdate(n.user)
	case kindLiveEvent:
		l.OnLiveEvent(n.event)
	case kindEventDecrypted:
		l.OnEventDecrypted(n.event)
	case kindEventSentState:
		l.OnEventSentStateUpdated(n.event)
	case kindToDeviceEvent:
		l.OnToDeviceEvent(n.event)
	case kindNewRoom:
		l.OnNewRoom(n.roomID)
	case kindJoinRoom:
		l.OnJoinRoom(n.roomID)
	case kindRoomInitialSync:
		l.OnRoomInitialSyncComplete(n.roomID)
	case kindRoomInternalUpdate:
		l.OnRoomInternalUpdate(n.roomID)
	case kindNotificationCountUpdate:
		l.OnNotificationCountUpdate(n.roomID)
	case kindLeaveRoom:
		l.OnLeaveRoom(n.roomID)
	case kindRoomKick:
		l.OnRoomKick(n.roomID)
	case kindRoomFlush:
		l.OnRoomFlush(n.roomID)
	case kindRoomTag:
		l.OnRoomTagEvent(n.roomID)
	case kindReadMarker:
		l.OnReadMarkerEvent(n.roomID)
	case kindReceipt:
		l.OnReceiptEvent(n.roomID, n.senderIDs)
	case kindIgnoredUsers:
		l.OnIgnoredUsersListUpdate()
	case kindPushRules:
		l.OnPushRulesUpdate()
	case kindDirectChats:
		l.OnDirectChatRoomsUpdate()
	case kindGroupInvitation:
		l.OnNewGroupInvitation(n.groupID)
	case kindGroupJoin:
		l.OnJoinGroup(n.groupID)
	case kindGroupLeave:
		l.OnLeaveGroup(n.groupID)
	case kindGroupProfile:
		l.OnGroupProfileUpdate(n.groupID)
	case kindGroupRooms:
		l.OnGroupRoomsListUpdate(n.groupID)
	case kindGroupUsers:
		l.OnGroupUsersListUpdate(n.groupID)
	}
}

// One public method per notification kind; all of them funnel into publish.

func (h *Hub) OnStoreReady() { h.publish(notification{kind: kindStoreReady}) }

func (h *Hub) OnInitialSyncComplete(toToken string) {
	h.publish(notification{kind: kindInitialSyncComplete, toToken: toToken})
}

func (h *Hub) OnLiveEventsChunkProcessed(fromToken, toToken string) {
	h.publish(notification{kind: kindLiveEventsChunkProcessed, fromToken: fromToken, toToken: toToken})
}

func (h *Hub) OnCryptoSyncComplete() { h.publish(notification{kind: kindCryptoSyncComplete}) }

func (h *Hub) OnPresenceUpdate(event *types.Event, user *types.User) {
	h.publish(notification{kind: kindPresenceUpdate, event: event, user: user})
}

func (h *Hub) OnAccountInfoUpdate(user *types.User) {
	h.publish(notification{kind: kindAccountInfoUpdate, user: user})
}

func (h *Hub) OnLiveEvent(event *types.Event) {
	h.publish(notification{kind: kindLiveEvent, roomID: event.RoomID, event: event})
}

func (h *Hub) OnEventDecrypted(event *types.Event) {
	h.publish(notification{kind: kindEventDecrypted, event: event})
}

func (h *Hub) OnEventSentStateUpdated(event *types.Event) {
	h.publish(notification{kind: kindEventSentState, roomID: event.RoomID, event: event})
}

func (h *Hub) OnToDeviceEvent(event *types.Event) {
	h.publish(notification{kind: kindToDeviceEvent, event: event})
}

func (h *Hub) OnNewRoom(roomID string) {
	h.publish(notification{kind: kindNewRoom, roomID: roomID})
}

func (h *Hub) OnJoinRoom(roomID string) {
	h.publish(notification{kind: kindJoinRoom, roomID: roomID})
}

func (h *Hub) OnRoomInitialSyncComplete(roomID string) {
	h.publish(notification{kind: kindRoomInitialSync, roomID: roomID})
}

func (h *Hub) OnRoomInternalUpdate(roomID string) {
	h.publish(notification{kind: kindRoomInternalUpdate, roomID: roomID})
}

func (h *Hub) OnNotificationCountUpdate(roomID string) {
	h.publish(notification{kind: kindNotificationCountUpdate, roomID: roomID})
}

func (h *Hub) OnLeaveRoom(roomID string) {
	h.publish(notification{kind: kindLeaveRoom, roomID: roomID})
}

func (h *Hub) OnRoomKick(roomID string) {
	h.publish(notification{kind: kindRoomKick, roomID: roomID})
}

func (h *Hub) OnRoomFlush(roomID string) {
	h.publish(notification{kind: kindRoomFlush, roomID: roomID})
}

func (h *Hub) OnRoomTagEvent(roomID string) {
	h.publish(notification{kind: kindRoomTag, roomID: roomID})
}

func (h *Hub) OnReadMarkerEvent(roomID string) {
	h.publish(notification{kind: kindReadMarker, roomID: roomID})
}

func (h *Hub) OnReceiptEvent(roomID string, senderIDs []string) {
	h.publish(notification{kind: kindReceipt, roomID: roomID, senderIDs: senderIDs})
}

func (h *Hub) OnIgnoredUsersListUpdate() { h.publish(notification{kind: kindIgnoredUsers}) }

func (h *Hub) OnPushRulesUpdate() { h.publish(notification{kind: kindPushRules}) }

func (h *Hub) OnDirectChatRoomsUpdate() { h.publish(notification{kind: kindDirectChats}) }

func (h *Hub) OnNewGroupInvitation(groupID string) {
	h.publish(notification{kind: kindGroupInvitation, groupID: groupID})
}

func (h *Hub) OnJoinGroup(groupID string) {
	h.publish(notification{kind: kindGroupJoin, groupID: groupID})
}

func (h *Hub) OnLeaveGroup(groupID string) {
	h.publish(notification{kind: kindGroupLeave, groupID: groupID})
}

func (h *Hub) OnGroupProfileUpdate(groupID string) {
	h.publish(notification{kind: kindGroupProfile, groupID: groupID})
}

func (h *Hub) OnGroupRoomsListUpdate(groupID string) {
	h.publish(notification{kind: kindGroupRooms, groupID: groupID})
}

func (h *Hub) OnGroupUsersListUpdate(groupID string) {
	h.publish(notification{kind: kindGroupUsers, groupID: groupID})
}
