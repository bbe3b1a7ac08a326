// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package notifier

import (
	"github.com/coletivoEITA/matrix-android-sdk/types"
)

// Listener receives engine notifications, one callback per kind. All
// callbacks fire on the hub's single delivery goroutine; implementations
// must not block it. Embed NoopListener and override what you need.
type Listener interface {
	OnStoreReady()
	OnInitialSyncComplete(toToken string)
	OnLiveEventsChunkProcessed(fromToken, toToken string)
	OnCryptoSyncComplete()

	OnPresenceUpdate(event *types.Event, user *types.User)
	OnAccountInfoUpdate(user *types.User)

	OnLiveEvent(event *types.Event)
	OnEventDecrypted(event *types.Event)
	OnEventSentStateUpdated(event *types.Event)
	OnToDeviceEvent(event *types.Event)

	OnNewRoom(roomID string)
	OnJoinRoom(roomID string)
	OnRoomInitialSyncComplete(roomID string)
	OnRoomInternalUpdate(roomID string)
	OnNotificationCountUpdate(roomID string)
	OnLeaveRoom(roomID string)
	OnRoomKick(roomID string)
	OnRoomFlush(roomID string)
	OnRoomTagEvent(roomID string)
	OnReadMarkerEvent(roomID string)
	OnReceiptEvent(roomID string, senderIDs []string)

	OnIgnoredUsersListUpdate()
	OnPushRulesUpdate()
	OnDirectChatRoomsUpdate()

	OnNewGroupInvitation(groupID string)
	OnJoinGroup(groupID string)
	OnLeaveGroup(groupID string)
	OnGroupProfileUpdate(groupID string)
	OnGroupRoomsListUpdate(groupID string)
	OnGroupUsersListUpdate(groupID string)
}

// NoopListener implements Listener with empty methods.
type NoopListener struct{}

func (NoopListener) OnStoreReady()                                       {}
func (NoopListener) OnInitialSyncComplete(string)                        {}
func (NoopListener) OnLiveEventsChunkProcessed(string, string)           {}
func (NoopListener) OnCryptoSyncComplete()                               {}
func (NoopListener) OnPresenceUpdate(*types.Event, *types.User)          {}
func (NoopListener) OnAccountInfoUpdate(*types.User)                     {}
func (NoopListener) OnLiveEvent(*types.Event)                            {}
func (NoopListener) OnEventDecrypted(*types.Event)                       {}
func (NoopListener) OnEventSentStateUpdated(*types.Event)                {}
func (NoopListener) OnToDeviceEvent(*types.Event)                        {}
func (NoopListener) OnNewRoom(string)                                    {}
func (NoopListener) OnJoinRoom(string)                                   {}
func (NoopListener) OnRoomInitialSyncComplete(string)                    {}
func (NoopListener) OnRoomInternalUpdate(string)                         {}
func (NoopListener) OnNotificationCountUpdate(string)                    {}
func (NoopListener) OnLeaveRoom(string)                                  {}
func (NoopListener) OnRoomKick(string)                                   {}
func (NoopListener) OnRoomFlush(string)                                  {}
func (NoopListener) OnRoomTagEvent(string)                               {}
func (NoopListener) OnReadMarkerEvent(string)                            {}
func (NoopListener) OnReceiptEvent(string, []string)                     {}
func (NoopListener) OnIgnoredUsersListUpdate()                           {}
func (NoopListener) OnPushRulesUpdate()                                  {}
func (NoopListener) OnDirectChatRoomsUpdate()                            {}
func (NoopListener) OnNewGroupInvitation(string)                         {}
func (NoopListener) OnJoinGroup(string)                                  {}
func (NoopListener) OnLeaveGroup(string)                                 {}
func (NoopListener) OnGroupProfileUpdate(string)                         {}
func (NoopListener) OnGroupRoomsListUpdate(string)                       {}
func (NoopListener) OnGroupUsersListUpdate(string)                       {}
