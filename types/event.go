// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package types

import (
	"encoding/json"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/tidwall/gjson"
)

// Event types the sync engine branches on. Everything else is passed
// through to listeners untouched.
const (
	EventTypeMessage          = "m.room.message"
	EventTypeMessageEncrypted = "m.room.encrypted"
	EventTypeMember           = "m.room.member"
	EventTypeCreate           = "m.room.create"
	EventTypeName             = "m.room.name"
	EventTypeTopic            = "m.room.topic"
	EventTypeAvatar           = "m.room.avatar"
	EventTypePresence         = "m.presence"
	EventTypeReceipt          = "m.receipt"
	EventTypeTyping           = "m.typing"
	EventTypeTag              = "m.tag"
	EventTypeReadMarker       = "m.fully_read"
)

// Account data event types and the content keys read out of them.
const (
	AccountDataTypeIgnoredUserList = "m.ignored_user_list"
	AccountDataTypePushRules       = "m.push_rules"
	AccountDataTypeDirectMessages  = "m.direct"
	AccountDataTypePreviewURLs     = "org.matrix.preview_urls"

	AccountDataKeyIgnoredUsers      = "ignored_users"
	AccountDataKeyURLPreviewDisable = "disable"
)

// MsgTypeBadEncrypted is the message msgtype substituted by the crypto
// layer when a to-device event could not be decrypted.
const MsgTypeBadEncrypted = "m.bad.encrypted"

// Event is a single Matrix event as received from the sync stream. The
// content is kept raw: the engine only inspects the handful of fields it
// branches on and hands the rest to listeners as-is.
type Event struct {
	EventID        string          `json:"event_id,omitempty"`
	Type           string          `json:"type"`
	RoomID         string          `json:"room_id,omitempty"`
	Sender         string          `json:"sender,omitempty"`
	StateKey       *string         `json:"state_key,omitempty"`
	OriginServerTS spec.Timestamp  `json:"origin_server_ts,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	Unsigned       json.RawMessage `json:"unsigned,omitempty"`
	Redacts        string          `json:"redacts,omitempty"`

	// Decryption outcome, attached by the engine before any external
	// listener observes the event. Exactly one of the two is set for an
	// encrypted event that went through the crypto service.
	ClearEvent    *DecryptionResult `json:"-"`
	DecryptionErr *DecryptionError  `json:"-"`
}

// IsState reports whether the event is a state event.
func (e *Event) IsState() bool {
	return e.StateKey != nil
}

// Membership returns the membership value carried in the content of an
// m.room.member event, or the empty string.
func (e *Event) Membership() string {
	return gjson.GetBytes(e.Content, "membership").String()
}

// IsDirect reports whether an invite membership event was flagged as a
// direct chat invitation by the sender.
func (e *Event) IsDirect() bool {
	return gjson.GetBytes(e.Content, "is_direct").Bool()
}

// MessageMsgType returns the msgtype of an m.room.message content, taking
// the decrypted content into account when present.
func (e *Event) MessageMsgType() string {
	if e.ClearEvent != nil {
		return gjson.GetBytes(e.ClearEvent.ClearContent, "msgtype").String()
	}
	return gjson.GetBytes(e.Content, "msgtype").String()
}

// SetClearData attaches a successful decryption result.
func (e *Event) SetClearData(result *DecryptionResult) {
	e.ClearEvent = result
	e.DecryptionErr = nil
}

// SetDecryptionError attaches a typed decryption failure. The event is
// still delivered; consumers decide how to render it.
func (e *Event) SetDecryptionError(err *DecryptionError) {
	e.DecryptionErr = err
}

// DecryptionResult is the cleartext view of an encrypted event.
type DecryptionResult struct {
	ClearType            string          `json:"type"`
	ClearContent         json.RawMessage `json:"content"`
	SenderCurve25519Key  string          `json:"sender_key,omitempty"`
	ClaimedEd25519Key    string          `json:"claimed_ed25519_key,omitempty"`
	ForwardingCurve25519 []string        `json:"forwarding_curve25519_key_chain,omitempty"`
}

// Decryption error codes reported by the crypto service contract.
const (
	DecryptionErrCodeEncryptionNotEnabled  = "ENCRYPTING_NOT_ENABLED"
	DecryptionErrCodeUnknownInboundSession = "UNKNOWN_INBOUND_SESSION_ID"
	DecryptionErrCodeUnableToDecrypt       = "UNABLE_TO_DECRYPT"
)

// DecryptionError is a per-event decryption failure. It is attached to the
// event rather than aborting the surrounding batch.
type DecryptionError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (e *DecryptionError) Error() string {
	return e.Code + ": " + e.Reason
}

// NewDecryptionError builds a typed decryption failure.
func NewDecryptionError(code, reason string) *DecryptionError {
	return &DecryptionError{Code: code, Reason: reason}
}
