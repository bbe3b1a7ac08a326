// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

// Package memory provides the in-memory Store implementation. It backs the
// archive store at runtime and serves as the reference store in tests.
package memory

import (
	"sort"
	"sync"

	"github.com/coletivoEITA/matrix-android-sdk/storage"
	"github.com/coletivoEITA/matrix-android-sdk/types"
)

// Store keeps everything in maps guarded by one RWMutex. Writes come from
// the ingestion worker; reads can come from any goroutine.
type Store struct {
	mu sync.RWMutex

	rooms     map[string]*types.Room
	summaries map[string]*types.RoomSummary
	users     map[string]*types.User
	events    map[string][]*types.Event
	receipts  map[string][]types.Receipt

	ignoredUserIDs  []string
	directChatRooms map[string][]string
	urlPreview      *bool
	streamToken     string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		rooms:     make(map[string]*types.Room),
		summaries: make(map[string]*types.RoomSummary),
		users:     make(map[string]*types.User),
		events:    make(map[string][]*types.Event),
		receipts:  make(map[string][]types.Receipt),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Room(roomID string) *types.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[roomID]
}

func (s *Store) StoreRoom(room *types.Room) {
	if room == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
}

func (s *Store) DeleteRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	delete(s.summaries, roomID)
	delete(s.events, roomID)
	delete(s.receipts, roomID)
}

func (s *Store) Rooms() []*types.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Summary(roomID string) *types.RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries[roomID]
}

func (s *Store) Summaries() []*types.RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.RoomSummary, 0, len(s.summaries))
	for _, summary := range s.summaries {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func (s *Store) StoreSummary(summary *types.RoomSummary) {
	if summary == nil || summary.RoomID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summary.RoomID] = summary
}

func (s *Store) User(userID string) *types.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID]
}

func (s *Store) StoreUser(user *types.User) {
	if user == nil || user.UserID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.UserID] = user
}

func (s *Store) RoomEvents(roomID string) []*types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[roomID]
	out := make([]*types.Event, len(events))
	copy(out, events)
	return out
}

func (s *Store) StoreRoomEvent(event *types.Event) {
	if event == nil || event.RoomID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.RoomID] = append(s.events[event.RoomID], event)
}

func (s *Store) DeleteRoomEvent(roomID, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events[roomID]
	for i, ev := range events {
		if ev.EventID == eventID {
			s.events[roomID] = append(events[:i:i], events[i+1:]...)
			return
		}
	}
}

func (s *Store) LatestEvent(roomID string) *types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[roomID]
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

func (s *Store) Receipts(roomID string) []types.Receipt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipts := s.receipts[roomID]
	out := make([]types.Receipt, len(receipts))
	copy(out, receipts)
	return out
}

func (s *Store) StoreReceipt(roomID string, receipt types.Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[roomID] = append(s.receipts[roomID], receipt)
}

func (s *Store) IgnoredUserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ignoredUserIDs
}

func (s *Store) SetIgnoredUserIDs(userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userIDs == nil {
		userIDs = []string{}
	}
	s.ignoredUserIDs = userIDs
}

func (s *Store) DirectChatRooms() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.directChatRooms == nil {
		return nil
	}
	out := make(map[string][]string, len(s.directChatRooms))
	for user, roomIDs := range s.directChatRooms {
		out[user] = append([]string(nil), roomIDs...)
	}
	return out
}

func (s *Store) SetDirectChatRooms(index map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index == nil {
		index = make(map[string][]string)
	}
	s.directChatRooms = index
}

func (s *Store) URLPreviewEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.urlPreview == nil {
		return true
	}
	return *s.urlPreview
}

func (s *Store) SetURLPreviewEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urlPreview = &enabled
}

func (s *Store) EventStreamToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamToken
}

func (s *Store) SetEventStreamToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamToken = token
}

// Commit is a no-op: the in-memory store is always consistent.
func (s *Store) Commit() error { return nil }

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = make(map[string]*types.Room)
	s.summaries = make(map[string]*types.RoomSummary)
	s.users = make(map[string]*types.User)
	s.events = make(map[string][]*types.Event)
	s.receipts = make(map[string][]types.Receipt)
	s.ignoredUserIDs = nil
	s.directChatRooms = nil
	s.urlPreview = nil
	s.streamToken = ""
}

func (s *Store) Close() error { return nil }
