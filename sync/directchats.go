// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/coletivoEITA/matrix-android-sdk/api"
	"github.com/coletivoEITA/matrix-android-sdk/storage"
	"github.com/coletivoEITA/matrix-android-sdk/types"
)

const directRoomIDsCacheKey = "direct_room_ids"

// directChatIndex is the local view of the m.direct account data, with a
// lazily recomputed flattened room-id list. The store holds the canonical
// index, the cache only avoids re-flattening it on every lookup.
type directChatIndex struct {
	store storage.Store
	cache *cache.Cache
}

func newDirectChatIndex(store storage.Store) *directChatIndex {
	return &directChatIndex{
		store: store,
		cache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// RoomIDs returns every room referenced by the index, deduplicated and
// sorted.
func (d *directChatIndex) RoomIDs() []string {
	if cached, ok := d.cache.Get(directRoomIDsCacheKey); ok {
		return cached.([]string)
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, rooms := range d.store.DirectChatRooms() {
		for _, roomID := range rooms {
			if _, ok := seen[roomID]; ok {
				continue
			}
			seen[roomID] = struct{}{}
			ids = append(ids, roomID)
		}
	}
	sort.Strings(ids)
	d.cache.SetDefault(directRoomIDsCacheKey, ids)
	return ids
}

// RoomIDsForUser returns the rooms recorded as direct chats with one user.
func (d *directChatIndex) RoomIDsForUser(userID string) []string {
	index := d.store.DirectChatRooms()
	if index == nil {
		return nil
	}
	out := make([]string, len(index[userID]))
	copy(out, index[userID])
	return out
}

// Invalidate drops the flattened view after the index changed.
func (d *directChatIndex) Invalidate() {
	d.cache.Delete(directRoomIDsCacheKey)
}

// MergeAndUpload folds staged inviter-to-room pairs into the index and
// pushes the whole index upstream in one write.
func (d *directChatIndex) MergeAndUpload(ctx context.Context, client api.AccountDataClient, selfUserID string, staged map[string][]string) error {
	index := d.currentIndex(selfUserID)
	changed := false
	for userID, rooms := range staged {
		for _, roomID := range rooms {
			if containsString(index[userID], roomID) {
				continue
			}
			index[userID] = append(index[userID], roomID)
			changed = true
		}
	}
	if !changed && d.store.DirectChatRooms() != nil {
		return nil
	}
	if err := d.upload(ctx, client, selfUserID, index); err != nil {
		return err
	}
	// The server will echo the index back through account data; recording
	// it now keeps local classification current in the meantime.
	d.store.SetDirectChatRooms(index)
	d.Invalidate()
	return nil
}

// SetRoom toggles one room in the index for the given user and uploads the
// result.
func (d *directChatIndex) SetRoom(ctx context.Context, client api.AccountDataClient, selfUserID, userID, roomID string) error {
	index := d.currentIndex(selfUserID)
	if containsString(index[userID], roomID) {
		kept := index[userID][:0]
		for _, id := range index[userID] {
			if id != roomID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(index, userID)
		} else {
			index[userID] = kept
		}
	} else {
		index[userID] = append(index[userID], roomID)
	}
	if err := d.upload(ctx, client, selfUserID, index); err != nil {
		return err
	}
	d.store.SetDirectChatRooms(index)
	d.Invalidate()
	return nil
}

// currentIndex returns the stored index, or the legacy inference when the
// account never carried m.direct data. Sessions migrated from before the
// index existed get their two-member rooms recorded as direct chats once.
func (d *directChatIndex) currentIndex(selfUserID string) map[string][]string {
	if index := d.store.DirectChatRooms(); index != nil {
		return index
	}
	logrus.Info("No m.direct data on account, inferring direct chats from two-member rooms")
	index := make(map[string][]string)
	for _, room := range d.store.Rooms() {
		if !looksLikeDirectChat(room, selfUserID) {
			continue
		}
		for _, member := range room.ActiveMembers() {
			if member.UserID != selfUserID {
				index[member.UserID] = append(index[member.UserID], room.ID)
				break
			}
		}
	}
	return index
}

// looksLikeDirectChat is the pre-index heuristic: exactly two active
// members, no explicit tag, and our own membership settled as join, leave
// or ban.
func looksLikeDirectChat(room *types.Room, selfUserID string) bool {
	if room.HasTags() {
		return false
	}
	self := room.Member(selfUserID)
	if self == nil {
		return false
	}
	switch self.Membership {
	case spec.Join, spec.Leave, spec.Ban:
	default:
		return false
	}
	return len(room.ActiveMembers()) == 2
}

// upload replaces the whole m.direct object upstream. The content is one
// flat object keyed by user ID, so it is marshalled in one piece rather
// than built key by key.
func (d *directChatIndex) upload(ctx context.Context, client api.AccountDataClient, selfUserID string, index map[string][]string) error {
	for _, rooms := range index {
		sort.Strings(rooms)
	}
	body, err := json.Marshal(index)
	if err != nil {
		return errors.Wrap(err, "building m.direct content")
	}
	if err := client.SetAccountData(ctx, selfUserID, types.AccountDataTypeDirectMessages, body); err != nil {
		return errors.Wrap(err, "uploading m.direct content")
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
