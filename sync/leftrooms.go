// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/coletivoEITA/matrix-android-sdk/api"
	"github.com/coletivoEITA/matrix-android-sdk/notifier"
	"github.com/coletivoEITA/matrix-android-sdk/setup/config"
	"github.com/coletivoEITA/matrix-android-sdk/storage"
	"github.com/coletivoEITA/matrix-android-sdk/types"
)

type leftRoomsState int

const (
	leftRoomsIdle leftRoomsState = iota
	leftRoomsFetching
	leftRoomsReady
)

// leftRoomCoalescer backfills the archive with historic left rooms on
// first demand. However many callers arrive while the fetch is in flight,
// exactly one request goes to the homeserver; the waiters are flushed
// atomically with the single outcome.
type leftRoomCoalescer struct {
	cfg        *config.SyncEngine
	client     api.SyncClient
	store      storage.Store
	archive    storage.Store
	hub        *notifier.Hub
	selfUserID string

	mu      sync.Mutex
	state   leftRoomsState
	waiters []chan error
}

func newLeftRoomCoalescer(cfg *config.SyncEngine, client api.SyncClient, store, archive storage.Store, hub *notifier.Hub, selfUserID string) *leftRoomCoalescer {
	return &leftRoomCoalescer{
		cfg:        cfg,
		client:     client,
		store:      store,
		archive:    archive,
		hub:        hub,
		selfUserID: selfUserID,
	}
}

// Rooms returns the archived rooms, performing the historic fetch if it
// has not happened yet this session.
func (c *leftRoomCoalescer) Rooms(ctx context.Context) ([]*types.Room, error) {
	c.mu.Lock()
	switch c.state {
	case leftRoomsReady:
		c.mu.Unlock()
		return c.archiveRooms(), nil
	case leftRoomsFetching:
		waiter := make(chan error, 1)
		c.waiters = append(c.waiters, waiter)
		c.mu.Unlock()
		select {
		case err := <-waiter:
			if err != nil {
				return nil, err
			}
			return c.archiveRooms(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	default:
		c.state = leftRoomsFetching
		waiter := make(chan error, 1)
		c.waiters = append(c.waiters, waiter)
		c.mu.Unlock()

		// Fetch on its own lifetime so one caller cancelling does not kill
		// the request the other waiters depend on.
		go c.fetch()

		select {
		case err := <-waiter:
			if err != nil {
				return nil, err
			}
			return c.archiveRooms(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *leftRoomCoalescer) fetch() {
	reqID := uuid.New().String()
	log := logrus.WithField("req_id", reqID)
	log.Info("Fetching historic left rooms")

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ArchiveRequestTimeout())
	defer cancel()

	resp, err := c.client.SyncFromToken(ctx, "", 0, api.LeftRoomsFilter)
	if err != nil {
		c.finish(errors.Wrap(err, "fetching left rooms"))
		log.WithError(err).Error("Left rooms fetch failed")
		return
	}
	leftRoomFetches.Inc()

	count := 0
	if resp.Rooms != nil {
		for roomID, delta := range resp.Rooms.Leave {
			if delta == nil {
				continue
			}
			// Rooms rejoined since the server snapshot stay active.
			if c.store.Room(roomID) != nil {
				continue
			}
			// Only voluntary departures belong in the archive.
			if resolveDepartureKind(types.NewRoom(roomID), delta, c.selfUserID) != departureLeave {
				continue
			}
			room := types.NewRoom(roomID)
			room.SetLeft(true)
			for i := range delta.State.Events {
				ev := &delta.State.Events[i]
				ev.RoomID = roomID
				room.ApplyStateEvent(ev)
			}
			summary := types.NewRoomSummary(roomID, nil)
			for i := range delta.Timeline.Events {
				ev := &delta.Timeline.Events[i]
				ev.RoomID = roomID
				room.AppendTimelineEvent(ev)
				c.archive.StoreRoomEvent(ev)
				summary.SetLatestEvent(ev)
			}
			room.SetPrevBatch(delta.Timeline.PrevBatch)
			c.archive.StoreRoom(room)
			c.archive.StoreSummary(summary)
			count++
		}
	}
	if err := c.archive.Commit(); err != nil {
		c.finish(errors.Wrap(err, "committing archive"))
		log.WithError(err).Error("Failed to commit left rooms archive")
		return
	}

	log.WithField("rooms", count).Info("Historic left rooms archived")
	c.finish(nil)
}

// finish moves the state machine to its terminal state and flushes every
// queued waiter with the same outcome in one critical section.
func (c *leftRoomCoalescer) finish(err error) {
	c.mu.Lock()
	if err != nil {
		c.state = leftRoomsIdle
	} else {
		c.state = leftRoomsReady
	}
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- err
	}
}

// IsRetrieving reports whether the historic fetch is in flight.
func (c *leftRoomCoalescer) IsRetrieving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == leftRoomsFetching
}

// ShouldSuppress hides room-scoped notifications for rooms that are being
// written into the archive mid-fetch, so listeners never observe a half
// reconstructed left room.
func (c *leftRoomCoalescer) ShouldSuppress(roomID string) bool {
	if !c.IsRetrieving() {
		return false
	}
	return c.store.Room(roomID) == nil
}

// Release drops the archive so the next Rooms call starts a fresh fetch.
func (c *leftRoomCoalescer) Release() {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = leftRoomsIdle
	c.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- context.Canceled
	}
	c.archive.Clear()
}

func (c *leftRoomCoalescer) archiveRooms() []*types.Room {
	return c.archive.Rooms()
}
