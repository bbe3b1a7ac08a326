// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

import "encoding/json"

// PushRuleSet is the rebuilt view of the account's push rules, grouped by
// rule kind. Rule matching itself is out of scope for the sync core; the
// set is parsed, cached and handed to listeners on change.
type PushRuleSet struct {
	Override  []PushRule `json:"override,omitempty"`
	Content   []PushRule `json:"content,omitempty"`
	Room      []PushRule `json:"room,omitempty"`
	Sender    []PushRule `json:"sender,omitempty"`
	Underride []PushRule `json:"underride,omitempty"`
}

// PushRule is one push rule as synced from account data.
type PushRule struct {
	RuleID     string            `json:"rule_id"`
	Default    bool              `json:"default"`
	Enabled    bool              `json:"enabled"`
	Pattern    string            `json:"pattern,omitempty"`
	Conditions []PushCondition   `json:"conditions,omitempty"`
	Actions    []json.RawMessage `json:"actions,omitempty"`
}

// PushCondition is one condition attached to a push rule.
type PushCondition struct {
	Kind    string `json:"kind"`
	Key     string `json:"key,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Is      string `json:"is,omitempty"`
}

// pushRulesContent is the wire shape of the m.push_rules content.
type pushRulesContent struct {
	Global PushRuleSet `json:"global"`
}

// ParsePushRules rebuilds a PushRuleSet from the raw content of an
// m.push_rules account data event.
func ParsePushRules(content json.RawMessage) (*PushRuleSet, error) {
	var parsed pushRulesContent
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil, err
	}
	return &parsed.Global, nil
}
