// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

// Package sync reconciles /sync responses into local room state. The engine
// owns the active and archive stores, feeds the crypto service, and fans
// state changes out through the notifier hub.
package sync

import (
	"context"
	stdsync "sync"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/coletivoEITA/matrix-android-sdk/api"
	"github.com/coletivoEITA/matrix-android-sdk/crypto"
	"github.com/coletivoEITA/matrix-android-sdk/internal"
	"github.com/coletivoEITA/matrix-android-sdk/notifier"
	"github.com/coletivoEITA/matrix-android-sdk/setup/config"
	"github.com/coletivoEITA/matrix-android-sdk/storage"
	"github.com/coletivoEITA/matrix-android-sdk/types"
)

type syncJob struct {
	resp         *types.SyncResponse
	fromToken    string
	isCatchingUp bool
}

// Engine is the sync reconciliation core. One Engine exists per logged-in
// session. All response processing happens on a single ingestion goroutine
// so store writes and notification ordering never race.
type Engine struct {
	cfg     *config.SyncEngine
	creds   types.Credentials
	store   storage.Store
	archive storage.Store
	hub     *notifier.Hub
	crypto  crypto.Service
	client  api.SyncClient
	account api.AccountDataClient

	jobs chan syncJob
	quit chan struct{}
	done chan struct{}

	flushes stdsync.WaitGroup

	alive               *atomic.Bool
	initialSyncComplete *atomic.Bool

	leftRooms *leftRoomCoalescer
	gate      *cryptoGate
	direct    *directChatIndex
	rules     *pushRuleHolder
}

// NewEngine wires an engine around its stores and clients and starts the
// ingestion worker. The caller remains responsible for driving the sync
// loop and handing each response to OnSyncResponse.
func NewEngine(
	cfg *config.SyncEngine,
	creds types.Credentials,
	store, archive storage.Store,
	client api.SyncClient,
	account api.AccountDataClient,
	cryptoSvc crypto.Service,
) *Engine {
	queue := cfg.IngestQueueSize
	if queue <= 0 {
		queue = 16
	}
	hub := notifier.NewHub(cfg.DispatchQueueSize)
	e := &Engine{
		cfg:                 cfg,
		creds:               creds,
		store:               store,
		archive:             archive,
		hub:                 hub,
		crypto:              cryptoSvc,
		client:              client,
		account:             account,
		jobs:                make(chan syncJob, queue),
		quit:                make(chan struct{}),
		done:                make(chan struct{}),
		alive:               atomic.NewBool(true),
		initialSyncComplete: atomic.NewBool(false),
		direct:              newDirectChatIndex(store),
		rules:               &pushRuleHolder{},
	}
	e.leftRooms = newLeftRoomCoalescer(cfg, client, store, archive, hub, creds.UserID)
	e.gate = &cryptoGate{svc: cryptoSvc, hub: hub}
	hub.SetSuppression(e.leftRooms.ShouldSuppress)
	go e.ingestLoop()
	return e
}

// Notifier exposes the hub for listener registration.
func (e *Engine) Notifier() *notifier.Hub { return e.hub }

// OnSyncResponse hands one /sync response to the ingestion worker.
// fromToken is the token the request was made with, empty for the initial
// sync. isCatchingUp is true while the session is replaying a backlog
// after being offline.
func (e *Engine) OnSyncResponse(resp *types.SyncResponse, fromToken string, isCatchingUp bool) {
	if resp == nil {
		return
	}
	// The quit case keeps a caller parked on a full queue from racing the
	// teardown; the jobs channel itself is never closed.
	select {
	case e.jobs <- syncJob{resp: resp, fromToken: fromToken, isCatchingUp: isCatchingUp}:
	case <-e.quit:
		logrus.Warn("Sync response received after engine release, dropping")
	}
}

func (e *Engine) ingestLoop() {
	defer close(e.done)
	for {
		select {
		case job := <-e.jobs:
			e.processResponse(job.resp, job.fromToken, job.isCatchingUp)
		case <-e.quit:
			for {
				select {
				case job := <-e.jobs:
					e.processResponse(job.resp, job.fromToken, job.isCatchingUp)
				default:
					return
				}
			}
		}
	}
}

// processResponse applies one response in the fixed section order:
// to-device, account data, joined rooms, invited rooms, left rooms,
// groups, presence. Invites and leaves for the same room in one response
// resolve to the leave because leaves apply last.
func (e *Engine) processResponse(resp *types.SyncResponse, fromToken string, isCatchingUp bool) {
	task, _ := internal.StartTask(context.Background(), "SyncEngine.processResponse")
	defer task.EndTask()
	task.SetTag("from_token", fromToken)

	isInitial := fromToken == ""
	syncResponsesProcessed.Inc()

	log := logrus.WithFields(logrus.Fields{
		"from_token":  fromToken,
		"next_batch":  resp.NextBatch,
		"catching_up": isCatchingUp,
	})
	log.Debug("Processing sync response")

	for i := range resp.ToDevice.Events {
		e.hub.OnToDeviceEvent(&resp.ToDevice.Events[i])
	}

	e.processAccountData(resp.AccountData.Events, isInitial)

	staged := newStagedDirectChats()

	if resp.Rooms != nil {
		for roomID, delta := range resp.Rooms.Join {
			if err := e.processJoinedRoom(roomID, delta, isInitial); err != nil {
				roomReconciliationFailures.Inc()
				sentry.CaptureException(err)
				log.WithError(err).WithField("room_id", roomID).Error("Failed to reconcile joined room")
			}
		}
		for roomID, invited := range resp.Rooms.Invite {
			if err := e.processInvitedRoom(roomID, invited, staged); err != nil {
				roomReconciliationFailures.Inc()
				sentry.CaptureException(err)
				log.WithError(err).WithField("room_id", roomID).Error("Failed to reconcile invited room")
			}
		}
		for roomID, delta := range resp.Rooms.Leave {
			if err := e.processLeftRoom(roomID, delta, isInitial); err != nil {
				roomReconciliationFailures.Inc()
				sentry.CaptureException(err)
				log.WithError(err).WithField("room_id", roomID).Error("Failed to reconcile left room")
			}
		}
	}

	if resp.Groups != nil {
		e.processGroups(resp.Groups, isInitial)
	}

	e.processPresence(resp.Presence.Events, isInitial)

	if e.crypto != nil {
		e.crypto.OnSyncCompleted(resp, fromToken, isCatchingUp)
	}

	// The continuation token only advances on responses that carried data,
	// so an empty response can never strand events behind the token.
	if !resp.IsEmpty() {
		e.store.SetEventStreamToken(resp.NextBatch)
		if err := e.store.Commit(); err != nil {
			sentry.CaptureException(err)
			log.WithError(err).Error("Failed to commit store after sync response")
		}
	}

	// The m.direct upload is fire-and-forget relative to the response so a
	// slow homeserver cannot stall ingestion of the next chunk.
	if pairs := staged.take(); len(pairs) > 0 {
		e.flushes.Add(1)
		go func() {
			defer e.flushes.Done()
			e.flushDirectChats(pairs)
		}()
	}

	e.gate.onSyncProcessed(isInitial, isCatchingUp, resp.IsEmpty())

	if isInitial {
		e.initialSyncComplete.Store(true)
		e.hub.OnStoreReady()
		e.hub.OnInitialSyncComplete(resp.NextBatch)
	} else {
		e.hub.OnLiveEventsChunkProcessed(fromToken, resp.NextBatch)
	}
}

// Release tears the engine down. Queued responses are drained, the hub is
// closed and both stores are released. Further calls on the engine degrade
// to logged safe defaults.
func (e *Engine) Release() {
	if !e.alive.CompareAndSwap(true, false) {
		return
	}
	close(e.quit)
	<-e.done
	e.flushes.Wait()
	e.leftRooms.Release()
	e.hub.Close()
	if err := e.store.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close active store")
	}
	if err := e.archive.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close archive store")
	}
	logrus.Info("Sync engine released")
}

// IsAlive reports whether Release has not yet been called.
func (e *Engine) IsAlive() bool { return e.alive.Load() }

// IsInitialSyncComplete reports whether at least one initial sync response
// has been fully reconciled this session.
func (e *Engine) IsInitialSyncComplete() bool {
	return e.initialSyncComplete.Load()
}

// Room returns the room with the given ID from the active store, creating
// and storing an empty shell if it is referenced before any sync delta
// mentioned it.
func (e *Engine) Room(roomID string) *types.Room {
	if !e.alive.Load() {
		logrus.WithField("room_id", roomID).Warn("Room requested after engine release")
		return nil
	}
	if room := e.store.Room(roomID); room != nil {
		return room
	}
	room := types.NewRoom(roomID)
	e.store.StoreRoom(room)
	return room
}

// DoesRoomExist reports whether the room is known to either store without
// creating it.
func (e *Engine) DoesRoomExist(roomID string) bool {
	if !e.alive.Load() {
		return false
	}
	return e.store.Room(roomID) != nil || e.archive.Room(roomID) != nil
}

// Rooms returns every room in the active store.
func (e *Engine) Rooms() []*types.Room {
	if !e.alive.Load() {
		return nil
	}
	return e.store.Rooms()
}

// LeftRoom returns an archived room, or nil if the room was never archived.
func (e *Engine) LeftRoom(roomID string) *types.Room {
	if !e.alive.Load() {
		return nil
	}
	return e.archive.Room(roomID)
}

// LeftRooms returns the archived rooms, triggering at most one historic
// fetch from the homeserver regardless of how many callers arrive while
// the fetch is in flight.
func (e *Engine) LeftRooms(ctx context.Context) ([]*types.Room, error) {
	if !e.alive.Load() {
		logrus.Warn("Left rooms requested after engine release")
		return nil, nil
	}
	return e.leftRooms.Rooms(ctx)
}

// ReleaseLeftRooms drops the archive so the next LeftRooms call fetches
// fresh data.
func (e *Engine) ReleaseLeftRooms() {
	if !e.alive.Load() {
		return
	}
	e.leftRooms.Release()
}

// Summary returns the stored summary for a room, if any.
func (e *Engine) Summary(roomID string) *types.RoomSummary {
	if !e.alive.Load() {
		return nil
	}
	return e.store.Summary(roomID)
}

// Summaries returns every stored room summary, optionally including
// summaries preserved for archived rooms.
func (e *Engine) Summaries(withArchived bool) []*types.RoomSummary {
	if !e.alive.Load() {
		return nil
	}
	summaries := e.store.Summaries()
	if withArchived {
		summaries = append(summaries, e.archive.Summaries()...)
	}
	return summaries
}

// User resolves a user profile from the active store, falling back to
// member data preserved in the archive for users only seen in rooms that
// have since been left.
func (e *Engine) User(userID string) *types.User {
	if !e.alive.Load() {
		return nil
	}
	if user := e.store.User(userID); user != nil {
		return user
	}
	if user := e.archive.User(userID); user != nil {
		return user
	}
	for _, room := range e.archive.Rooms() {
		if member := room.Member(userID); member != nil {
			return &types.User{
				UserID:      userID,
				DisplayName: member.DisplayName,
				AvatarURL:   member.AvatarURL,
			}
		}
	}
	return nil
}

// IgnoredUserIDs returns the current ignored-user list. Nil means the list
// has never been received from the server.
func (e *Engine) IgnoredUserIDs() []string {
	if !e.alive.Load() {
		return nil
	}
	return e.store.IgnoredUserIDs()
}

// IsUserIgnored reports whether the given user is on the ignored list.
func (e *Engine) IsUserIgnored(userID string) bool {
	for _, id := range e.IgnoredUserIDs() {
		if id == userID {
			return true
		}
	}
	return false
}

// PushRules returns the last push rule set received through account data,
// or nil if none arrived yet.
func (e *Engine) PushRules() *types.PushRuleSet {
	if !e.alive.Load() {
		return nil
	}
	return e.rules.get()
}

// DirectChatRoomIDs returns every room ID listed in the m.direct index.
func (e *Engine) DirectChatRoomIDs() []string {
	if !e.alive.Load() {
		return nil
	}
	return e.direct.RoomIDs()
}

// DirectChatRoomIDsForUser returns the direct-chat rooms shared with one
// user.
func (e *Engine) DirectChatRoomIDsForUser(userID string) []string {
	if !e.alive.Load() {
		return nil
	}
	return e.direct.RoomIDsForUser(userID)
}

// URLPreviewEnabled reports the account-level URL preview toggle.
func (e *Engine) URLPreviewEnabled() bool {
	if !e.alive.Load() {
		return true
	}
	return e.store.URLPreviewEnabled()
}

// EventStreamToken returns the persisted continuation token, empty before
// the first non-empty response.
func (e *Engine) EventStreamToken() string {
	if !e.alive.Load() {
		return ""
	}
	return e.store.EventStreamToken()
}

// DeleteRoomEvent removes one event from the store and repairs the room
// summary wherever it pointed at the deleted event.
func (e *Engine) DeleteRoomEvent(roomID, eventID string) {
	if !e.alive.Load() {
		logrus.WithField("event_id", eventID).Warn("Event deletion requested after engine release")
		return
	}
	e.store.DeleteRoomEvent(roomID, eventID)
	summary := e.store.Summary(roomID)
	if summary == nil {
		return
	}
	changed := false
	if summary.LatestEvent != nil && summary.LatestEvent.EventID == eventID {
		summary.SetLatestEvent(e.store.LatestEvent(roomID))
		changed = true
	}
	if summary.ReadReceiptEventID == eventID {
		summary.ReadReceiptEventID = ""
		changed = true
	}
	if summary.ReadMarkerEventID == eventID {
		summary.ReadMarkerEventID = ""
		changed = true
	}
	if !changed {
		return
	}
	e.store.StoreSummary(summary)
	e.hub.OnRoomInternalUpdate(roomID)
}

// DecryptEvent attempts in-place decryption of an encrypted event through
// the crypto service. It returns false when no crypto service is attached
// or decryption failed, in which case the event carries the decryption
// error instead.
func (e *Engine) DecryptEvent(event *types.Event, timelineID string) bool {
	if e.crypto == nil {
		return false
	}
	result, decErr := e.crypto.DecryptEvent(event, timelineID)
	if decErr != nil {
		event.SetDecryptionError(decErr)
		return false
	}
	event.SetClearData(result)
	return true
}

// SetDirectChatRoom toggles one room in the m.direct index for the given
// user and pushes the whole index to the server in a single write.
func (e *Engine) SetDirectChatRoom(ctx context.Context, userID, roomID string) error {
	if !e.alive.Load() {
		return nil
	}
	return e.direct.SetRoom(ctx, e.account, e.creds.UserID, userID, roomID)
}

// OnEventSentStateUpdated relays a local echo's sent-state transition to
// listeners. The sending path calls this as an event moves through
// sending, sent or failed.
func (e *Engine) OnEventSentStateUpdated(event *types.Event) {
	if !e.alive.Load() || event == nil {
		return
	}
	e.hub.OnEventSentStateUpdated(event)
}

func (e *Engine) decryptIfNeeded(event *types.Event, timelineID string) {
	if event.Type != types.EventTypeMessageEncrypted {
		return
	}
	if e.DecryptEvent(event, timelineID) {
		e.hub.OnEventDecrypted(event)
	}
}

type pushRuleHolder struct {
	v atomic.Value
}

func (h *pushRuleHolder) get() *types.PushRuleSet {
	set, _ := h.v.Load().(*types.PushRuleSet)
	return set
}

func (h *pushRuleHolder) set(set *types.PushRuleSet) {
	h.v.Store(set)
}

// stagedDirectChats accumulates inviter-to-room mappings discovered while
// reconciling one response so the m.direct index is written upstream once
// per response instead of once per invite.
type stagedDirectChats struct {
	pairs map[string][]string
}

func newStagedDirectChats() *stagedDirectChats {
	return &stagedDirectChats{pairs: make(map[string][]string)}
}

func (s *stagedDirectChats) add(userID, roomID string) {
	s.pairs[userID] = append(s.pairs[userID], roomID)
}

func (s *stagedDirectChats) take() map[string][]string {
	pairs := s.pairs
	s.pairs = make(map[string][]string)
	return pairs
}

func (e *Engine) flushDirectChats(pairs map[string][]string) {
	if err := e.direct.MergeAndUpload(context.Background(), e.account, e.creds.UserID, pairs); err != nil {
		sentry.CaptureException(err)
		logrus.WithError(err).Error("Failed to upload direct chat index")
	}
}
