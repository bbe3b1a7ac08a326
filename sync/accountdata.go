// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"encoding/json"
	"sort"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/coletivoEITA/matrix-android-sdk/types"
)

// processAccountData applies global account data events. One malformed
// event is logged and skipped without aborting the rest of the batch.
// During the initial sync the store is updated silently, listeners only
// hear about account data changes on incremental responses.
func (e *Engine) processAccountData(events []types.Event, isInitial bool) {
	for i := range events {
		ev := &events[i]
		var err error
		switch ev.Type {
		case types.AccountDataTypeIgnoredUserList:
			err = e.applyIgnoredUserList(ev, isInitial)
		case types.AccountDataTypePushRules:
			err = e.applyPushRules(ev, isInitial)
		case types.AccountDataTypeDirectMessages:
			err = e.applyDirectMessages(ev, isInitial)
		case types.AccountDataTypePreviewURLs:
			e.applyURLPreviewSettings(ev)
		default:
			logrus.WithField("type", ev.Type).Debug("Ignoring unhandled account data type")
		}
		if err != nil {
			sentry.CaptureException(err)
			logrus.WithError(err).WithField("type", ev.Type).Warn("Failed to apply account data event")
		}
	}
}

// applyIgnoredUserList replaces the stored ignored-user list. Re-delivery
// of an identical list is a no-op so listeners are only notified on real
// changes.
func (e *Engine) applyIgnoredUserList(ev *types.Event, isInitial bool) error {
	users := gjson.GetBytes(ev.Content, types.AccountDataKeyIgnoredUsers)
	ids := make([]string, 0, len(users.Map()))
	for userID := range users.Map() {
		ids = append(ids, userID)
	}
	sort.Strings(ids)

	if current := e.store.IgnoredUserIDs(); current != nil && equalStringSlices(current, ids) {
		return nil
	}
	e.store.SetIgnoredUserIDs(ids)
	if !isInitial {
		e.hub.OnIgnoredUsersListUpdate()
	}
	return nil
}

func (e *Engine) applyPushRules(ev *types.Event, isInitial bool) error {
	set, err := types.ParsePushRules(ev.Content)
	if err != nil {
		return err
	}
	e.rules.set(set)
	if !isInitial {
		e.hub.OnPushRulesUpdate()
	}
	return nil
}

// applyDirectMessages replaces the m.direct index. The server echoes our
// own uploads back through this path, which also keeps local state
// convergent after another client edits the index.
func (e *Engine) applyDirectMessages(ev *types.Event, isInitial bool) error {
	var index map[string][]string
	if err := json.Unmarshal(ev.Content, &index); err != nil {
		return err
	}
	e.store.SetDirectChatRooms(index)
	e.direct.Invalidate()
	if !isInitial {
		e.hub.OnDirectChatRoomsUpdate()
	}
	return nil
}

func (e *Engine) applyURLPreviewSettings(ev *types.Event) {
	disabled := gjson.GetBytes(ev.Content, types.AccountDataKeyURLPreviewDisable).Bool()
	e.store.SetURLPreviewEnabled(!disabled)
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
