// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coletivoEITA/matrix-android-sdk/notifier"
	"github.com/coletivoEITA/matrix-android-sdk/setup/config"
	"github.com/coletivoEITA/matrix-android-sdk/storage/memory"
	"github.com/coletivoEITA/matrix-android-sdk/types"
)

const (
	testUserID  = "@alice:test.org"
	testExtraID = "@bob:test.org"

	waitTimeout  = time.Second
	pollInterval = 5 * time.Millisecond
)

type mockSyncClient struct {
	mu       stdsync.Mutex
	calls    int
	filters  []string
	response *types.SyncResponse
	err      error
	// when set, SyncFromToken blocks until the channel closes
	block chan struct{}
}

func (m *mockSyncClient) SyncFromToken(ctx context.Context, since string, serverTimeout time.Duration, filter string) (*types.SyncResponse, error) {
	m.mu.Lock()
	m.calls++
	m.filters = append(m.filters, filter)
	block := m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.response, m.err
}

func (m *mockSyncClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockAccountDataClient struct {
	mu     stdsync.Mutex
	calls  int
	types  []string
	bodies []json.RawMessage
	err    error
}

func (m *mockAccountDataClient) SetAccountData(ctx context.Context, userID, dataType string, content json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.types = append(m.types, dataType)
	m.bodies = append(m.bodies, append(json.RawMessage(nil), content...))
	return m.err
}

func (m *mockAccountDataClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockAccountDataClient) lastBody() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bodies) == 0 {
		return nil
	}
	return m.bodies[len(m.bodies)-1]
}

type mockCrypto struct {
	mu         stdsync.Mutex
	started    bool
	starting   bool
	startCalls []bool
	doneFns    []func(error)
	syncCalls  int
	decrypted  []string
	result     *types.DecryptionResult
	decErr     *types.DecryptionError
	// when set, OnSyncCompleted blocks until the channel closes
	block chan struct{}
}

func (m *mockCrypto) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *mockCrypto) IsStarting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starting
}

func (m *mockCrypto) Start(isInitialSync bool, done func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	m.startCalls = append(m.startCalls, isInitialSync)
	m.doneFns = append(m.doneFns, done)
}

func (m *mockCrypto) OnSyncCompleted(response *types.SyncResponse, fromToken string, isCatchingUp bool) {
	m.mu.Lock()
	m.syncCalls++
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
}

func (m *mockCrypto) DecryptEvent(event *types.Event, timelineID string) (*types.DecryptionResult, *types.DecryptionError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decrypted = append(m.decrypted, event.EventID)
	return m.result, m.decErr
}

func (m *mockCrypto) startedWith() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.startCalls...)
}

// failLastStart reports the most recent start attempt as failed and resets
// the service state so the gate may retry.
func (m *mockCrypto) failLastStart(t *testing.T, err error) {
	t.Helper()
	m.mu.Lock()
	require.NotEmpty(t, m.doneFns)
	done := m.doneFns[len(m.doneFns)-1]
	m.started = false
	m.starting = false
	m.mu.Unlock()
	done(err)
}

// recordingListener keeps a flat trace of every notification it receives.
type recordingListener struct {
	notifier.NoopListener
	mu     stdsync.Mutex
	trace  []string
	events []*types.Event
}

func (l *recordingListener) record(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trace = append(l.trace, s)
}

func (l *recordingListener) has(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.trace {
		if got == s {
			return true
		}
	}
	return false
}

func (l *recordingListener) count(s string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, got := range l.trace {
		if got == s {
			n++
		}
	}
	return n
}

func (l *recordingListener) waitFor(t *testing.T, s string) {
	t.Helper()
	require.Eventually(t, func() bool { return l.has(s) }, waitTimeout, pollInterval, "never observed %q", s)
}

func (l *recordingListener) OnStoreReady() { l.record("store_ready") }
func (l *recordingListener) OnInitialSyncComplete(toToken string) {
	l.record("initial_sync:" + toToken)
}
func (l *recordingListener) OnLiveEventsChunkProcessed(fromToken, toToken string) {
	l.record("chunk:" + fromToken + ">" + toToken)
}
func (l *recordingListener) OnCryptoSyncComplete() { l.record("crypto_sync_complete") }
func (l *recordingListener) OnLiveEvent(event *types.Event) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
	l.record("live_event:" + event.EventID)
}
func (l *recordingListener) OnEventDecrypted(event *types.Event) {
	l.record("decrypted:" + event.EventID)
}
func (l *recordingListener) OnToDeviceEvent(event *types.Event) {
	l.record("to_device:" + event.Type)
}
func (l *recordingListener) OnPresenceUpdate(event *types.Event, user *types.User) {
	l.record("presence:" + user.UserID)
}
func (l *recordingListener) OnAccountInfoUpdate(user *types.User) {
	l.record("account_info:" + user.UserID)
}
func (l *recordingListener) OnEventSentStateUpdated(event *types.Event) {
	l.record("sent_state:" + event.EventID)
}
func (l *recordingListener) OnNewRoom(roomID string) { l.record("new_room:" + roomID) }
func (l *recordingListener) OnJoinRoom(roomID string) {
	l.record("join_room:" + roomID)
}
func (l *recordingListener) OnRoomInitialSyncComplete(roomID string) {
	l.record("room_initial_sync:" + roomID)
}
func (l *recordingListener) OnRoomInternalUpdate(roomID string) {
	l.record("room_update:" + roomID)
}
func (l *recordingListener) OnNotificationCountUpdate(roomID string) {
	l.record("notification_count:" + roomID)
}
func (l *recordingListener) OnLeaveRoom(roomID string) { l.record("leave_room:" + roomID) }
func (l *recordingListener) OnRoomKick(roomID string)  { l.record("room_kick:" + roomID) }
func (l *recordingListener) OnRoomFlush(roomID string) { l.record("room_flush:" + roomID) }
func (l *recordingListener) OnRoomTagEvent(roomID string) {
	l.record("room_tag:" + roomID)
}
func (l *recordingListener) OnReadMarkerEvent(roomID string) {
	l.record("read_marker:" + roomID)
}
func (l *recordingListener) OnReceiptEvent(roomID string, senderIDs []string) {
	l.record("receipt:" + roomID)
}
func (l *recordingListener) OnIgnoredUsersListUpdate() { l.record("ignored_users") }
func (l *recordingListener) OnPushRulesUpdate()        { l.record("push_rules") }
func (l *recordingListener) OnDirectChatRoomsUpdate()  { l.record("direct_chats") }
func (l *recordingListener) OnNewGroupInvitation(groupID string) {
	l.record("group_invite:" + groupID)
}
func (l *recordingListener) OnJoinGroup(groupID string)  { l.record("group_join:" + groupID) }
func (l *recordingListener) OnLeaveGroup(groupID string) { l.record("group_leave:" + groupID) }

type testHarness struct {
	engine   *Engine
	store    *memory.Store
	archive  *memory.Store
	client   *mockSyncClient
	account  *mockAccountDataClient
	crypto   *mockCrypto
	listener *recordingListener
}

func newTestHarness(t *testing.T, mutate ...func(*config.SyncEngine)) *testHarness {
	t.Helper()
	cfg := &config.SyncEngine{}
	cfg.Defaults()
	cfg.ArchiveLeftRooms = true
	for _, fn := range mutate {
		fn(cfg)
	}
	h := &testHarness{
		store:    memory.NewStore(),
		archive:  memory.NewStore(),
		client:   &mockSyncClient{},
		account:  &mockAccountDataClient{},
		crypto:   &mockCrypto{},
		listener: &recordingListener{},
	}
	h.engine = NewEngine(
		cfg,
		types.Credentials{UserID: testUserID, DeviceID: "TESTDEVICE", HomeServer: "https://test.org"},
		h.store, h.archive,
		h.client, h.account, h.crypto,
	)
	h.engine.Notifier().AddListener(h.listener)
	t.Cleanup(h.engine.Release)
	return h
}

// process runs one response through the reconciliation path synchronously.
func (h *testHarness) process(resp *types.SyncResponse, fromToken string, isCatchingUp bool) {
	h.engine.processResponse(resp, fromToken, isCatchingUp)
}

// waitForDirectFlush blocks until any in-flight m.direct upload settled.
func (h *testHarness) waitForDirectFlush() {
	h.engine.flushes.Wait()
}

func decodeDirectIndex(t *testing.T, body json.RawMessage) map[string][]string {
	t.Helper()
	var index map[string][]string
	require.NoError(t, json.Unmarshal(body, &index))
	return index
}

func rawContent(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func memberEvent(t *testing.T, eventID, sender, target, membership string, direct bool) types.Event {
	t.Helper()
	content := map[string]interface{}{"membership": membership}
	if direct {
		content["is_direct"] = true
	}
	return types.Event{
		EventID:  eventID,
		Type:     types.EventTypeMember,
		Sender:   sender,
		StateKey: &target,
		Content:  rawContent(t, content),
	}
}

func messageEvent(t *testing.T, eventID, sender, body string) types.Event {
	t.Helper()
	return types.Event{
		EventID: eventID,
		Type:    types.EventTypeMessage,
		Sender:  sender,
		Content: rawContent(t, map[string]interface{}{"msgtype": "m.text", "body": body}),
	}
}

func joinResponse(nextBatch, roomID string, timeline ...types.Event) *types.SyncResponse {
	return &types.SyncResponse{
		NextBatch: nextBatch,
		Rooms: &types.RoomsSyncResponse{
			Join: map[string]*types.RoomSyncDelta{
				roomID: {Timeline: types.TimelineBatch{Events: timeline}},
			},
		},
	}
}

func leaveResponse(nextBatch, roomID string, events ...types.Event) *types.SyncResponse {
	return &types.SyncResponse{
		NextBatch: nextBatch,
		Rooms: &types.RoomsSyncResponse{
			Leave: map[string]*types.RoomSyncDelta{
				roomID: {Timeline: types.TimelineBatch{Events: events}},
			},
		},
	}
}

func inviteResponse(nextBatch, roomID string, inviteState ...types.Event) *types.SyncResponse {
	return &types.SyncResponse{
		NextBatch: nextBatch,
		Rooms: &types.RoomsSyncResponse{
			Invite: map[string]*types.InvitedRoomSync{
				roomID: {InviteState: types.EventBatch{Events: inviteState}},
			},
		},
	}
}

func accountDataResponse(nextBatch string, events ...types.Event) *types.SyncResponse {
	return &types.SyncResponse{
		NextBatch:   nextBatch,
		AccountData: types.EventBatch{Events: events},
	}
}
