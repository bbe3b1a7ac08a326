// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncEngineDefaults(t *testing.T) {
	var cfg SyncEngine
	cfg.Defaults()

	assert.False(t, cfg.ArchiveLeftRooms)
	assert.Equal(t, 30000, cfg.ArchiveRequestTimeoutMS)
	assert.Equal(t, 512, cfg.DispatchQueueSize)
	assert.Equal(t, 16, cfg.IngestQueueSize)
	assert.Equal(t, 30*time.Second, cfg.ArchiveRequestTimeout())
	assert.NoError(t, cfg.Verify())
}

func TestSyncEngineVerify(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SyncEngine
		wantErr bool
	}{
		{name: "defaults pass", cfg: SyncEngine{ArchiveRequestTimeoutMS: 30000, DispatchQueueSize: 512, IngestQueueSize: 16}},
		{name: "negative timeout", cfg: SyncEngine{ArchiveRequestTimeoutMS: -1}, wantErr: true},
		{name: "negative dispatch queue", cfg: SyncEngine{DispatchQueueSize: -1}, wantErr: true},
		{name: "negative ingest queue", cfg: SyncEngine{IngestQueueSize: -1}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Verify()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("archive_left_rooms: true\ndispatch_queue_size: 64\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.ArchiveLeftRooms)
	assert.Equal(t, 64, cfg.DispatchQueueSize)
	assert.Equal(t, 30000, cfg.ArchiveRequestTimeoutMS)
	assert.Equal(t, 16, cfg.IngestQueueSize)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("archive_request_timeout_ms: -5\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
