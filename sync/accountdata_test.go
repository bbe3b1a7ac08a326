// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coletivoEITA/matrix-android-sdk/types"
)

func ignoredUsersEvent(t *testing.T, userIDs ...string) types.Event {
	t.Helper()
	users := make(map[string]interface{}, len(userIDs))
	for _, id := range userIDs {
		users[id] = map[string]interface{}{}
	}
	return types.Event{
		Type:    types.AccountDataTypeIgnoredUserList,
		Content: rawContent(t, map[string]interface{}{"ignored_users": users}),
	}
}

func TestIgnoredUserListStoredAndNotified(t *testing.T) {
	h := newTestHarness(t)
	h.process(accountDataResponse("t1"), "", false)

	h.process(accountDataResponse("t2", ignoredUsersEvent(t, "@spammer:test.org", "@troll:test.org")), "t1", false)

	assert.Equal(t, []string{"@spammer:test.org", "@troll:test.org"}, h.engine.IgnoredUserIDs())
	assert.True(t, h.engine.IsUserIgnored("@spammer:test.org"))
	assert.False(t, h.engine.IsUserIgnored(testExtraID))
	h.listener.waitFor(t, "ignored_users")
}

func TestIgnoredUserListRedeliveryIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	h.process(accountDataResponse("t1"), "", false)
	h.process(accountDataResponse("t2", ignoredUsersEvent(t, "@spammer:test.org")), "t1", false)
	h.listener.waitFor(t, "ignored_users")

	// The server may re-send the unchanged list; listeners stay quiet.
	h.process(accountDataResponse("t3", ignoredUsersEvent(t, "@spammer:test.org")), "t2", false)
	h.listener.waitFor(t, "chunk:t2>t3")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.listener.count("ignored_users"))
}

func TestAccountDataSilentDuringInitialSync(t *testing.T) {
	h := newTestHarness(t)

	directEvent := types.Event{
		Type:    types.AccountDataTypeDirectMessages,
		Content: rawContent(t, map[string][]string{testExtraID: {"!dm:test.org"}}),
	}
	h.process(accountDataResponse("t1", ignoredUsersEvent(t, "@spammer:test.org"), directEvent), "", false)
	h.listener.waitFor(t, "initial_sync:t1")

	// The store is updated, the listeners are not told.
	assert.Equal(t, []string{"@spammer:test.org"}, h.engine.IgnoredUserIDs())
	assert.Equal(t, []string{"!dm:test.org"}, h.engine.DirectChatRoomIDs())
	assert.False(t, h.listener.has("ignored_users"))
	assert.False(t, h.listener.has("direct_chats"))
}

func TestPushRulesParsed(t *testing.T) {
	h := newTestHarness(t)

	rulesEvent := types.Event{
		Type: types.AccountDataTypePushRules,
		Content: rawContent(t, map[string]interface{}{
			"global": map[string]interface{}{
				"override": []map[string]interface{}{
					{"rule_id": ".m.rule.master", "default": true, "enabled": false},
				},
				"content": []map[string]interface{}{
					{"rule_id": "alice", "pattern": "alice", "enabled": true},
				},
			},
		}),
	}
	h.process(accountDataResponse("t1", rulesEvent), "t0", false)

	rules := h.engine.PushRules()
	require.NotNil(t, rules)
	require.Len(t, rules.Override, 1)
	assert.Equal(t, ".m.rule.master", rules.Override[0].RuleID)
	require.Len(t, rules.Content, 1)
	assert.Equal(t, "alice", rules.Content[0].Pattern)
	h.listener.waitFor(t, "push_rules")
}

func TestDirectMessagesIndexReplaced(t *testing.T) {
	h := newTestHarness(t)
	h.process(accountDataResponse("t1", types.Event{
		Type:    types.AccountDataTypeDirectMessages,
		Content: rawContent(t, map[string][]string{testExtraID: {"!dm1:test.org", "!dm2:test.org"}}),
	}), "", false)

	assert.Equal(t, []string{"!dm1:test.org", "!dm2:test.org"}, h.engine.DirectChatRoomIDs())
	assert.Equal(t, []string{"!dm1:test.org", "!dm2:test.org"}, h.engine.DirectChatRoomIDsForUser(testExtraID))

	// A replacement drops rooms no longer in the index, including from the
	// flattened cache.
	h.process(accountDataResponse("t2", types.Event{
		Type:    types.AccountDataTypeDirectMessages,
		Content: rawContent(t, map[string][]string{testExtraID: {"!dm2:test.org"}}),
	}), "t1", false)

	assert.Equal(t, []string{"!dm2:test.org"}, h.engine.DirectChatRoomIDs())
	h.listener.waitFor(t, "direct_chats")
}

func TestURLPreviewToggle(t *testing.T) {
	h := newTestHarness(t)
	assert.True(t, h.engine.URLPreviewEnabled())

	h.process(accountDataResponse("t1", types.Event{
		Type:    types.AccountDataTypePreviewURLs,
		Content: rawContent(t, map[string]interface{}{"disable": true}),
	}), "t0", false)
	assert.False(t, h.engine.URLPreviewEnabled())

	h.process(accountDataResponse("t2", types.Event{
		Type:    types.AccountDataTypePreviewURLs,
		Content: rawContent(t, map[string]interface{}{"disable": false}),
	}), "t1", false)
	assert.True(t, h.engine.URLPreviewEnabled())
}

func TestMalformedAccountDataSkipped(t *testing.T) {
	h := newTestHarness(t)

	broken := types.Event{
		Type:    types.AccountDataTypeDirectMessages,
		Content: []byte(`{"not":"a direct index`),
	}
	h.process(accountDataResponse("t1", broken, ignoredUsersEvent(t, "@spammer:test.org")), "t0", false)

	// The malformed event is dropped; the rest of the batch still applies.
	assert.Equal(t, []string{"@spammer:test.org"}, h.engine.IgnoredUserIDs())
	assert.Equal(t, "t1", h.engine.EventStreamToken())
}
