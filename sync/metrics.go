// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncResponsesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matrixsdk",
			Subsystem: "sync",
			Name:      "responses_processed_total",
			Help:      "Total number of sync responses reconciled into the store.",
		},
	)
	roomReconciliationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matrixsdk",
			Subsystem: "sync",
			Name:      "room_reconciliation_failures_total",
			Help:      "Total number of per-room deltas that failed to apply.",
		},
	)
	roomsArchived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matrixsdk",
			Subsystem: "sync",
			Name:      "rooms_archived_total",
			Help:      "Total number of rooms moved into the archive store after a voluntary leave.",
		},
	)
	leftRoomFetches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matrixsdk",
			Subsystem: "sync",
			Name:      "left_room_fetches_total",
			Help:      "Total number of historic left-room fetches performed against the homeserver.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		syncResponsesProcessed,
		roomReconciliationFailures,
		roomsArchived,
		leftRoomFetches,
	)
}
