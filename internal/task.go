// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package internal

import (
	"context"

	"github.com/opentracing/opentracing-go"
)

// Task wraps an opentracing span for one unit of work, typically the
// processing of a single sync response.
type Task struct {
	span opentracing.Span
}

// StartTask begins a traced region and returns a context carrying it.
func StartTask(ctx context.Context, name string) (Task, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, name)
	return Task{span: span}, ctx
}

// SetTag attaches a key/value tag to the task's span.
func (t Task) SetTag(key string, value interface{}) {
	t.span.SetTag(key, value)
}

// EndTask finishes the span.
func (t Task) EndTask() {
	t.span.Finish()
}
