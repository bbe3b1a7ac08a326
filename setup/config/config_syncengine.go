// Copyright 2024 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// SyncEngine holds the tunables of the client sync core.
type SyncEngine struct {
	// If set, rooms left voluntarily are copied into the archive store
	// instead of being dropped outright.
	ArchiveLeftRooms bool `yaml:"archive_left_rooms"`

	// Server-side timeout for the one-off archived rooms request, in
	// milliseconds.
	ArchiveRequestTimeoutMS int `yaml:"archive_request_timeout_ms"`

	// Size of the listener delivery queue. Dispatch blocks the ingestion
	// worker once the queue is full, which keeps ordering intact.
	DispatchQueueSize int `yaml:"dispatch_queue_size"`

	// Size of the sync response ingestion queue.
	IngestQueueSize int `yaml:"ingest_queue_size"`
}

// Defaults sets sane defaults for any unset field.
func (c *SyncEngine) Defaults() {
	if c.ArchiveRequestTimeoutMS == 0 {
		c.ArchiveRequestTimeoutMS = 30000
	}
	if c.DispatchQueueSize == 0 {
		c.DispatchQueueSize = 512
	}
	if c.IngestQueueSize == 0 {
		c.IngestQueueSize = 16
	}
}

// Verify checks the configuration for nonsensical values.
func (c *SyncEngine) Verify() error {
	if c.ArchiveRequestTimeoutMS < 0 {
		return fmt.Errorf("archive_request_timeout_ms must not be negative, got %d", c.ArchiveRequestTimeoutMS)
	}
	if c.DispatchQueueSize < 0 {
		return fmt.Errorf("dispatch_queue_size must not be negative, got %d", c.DispatchQueueSize)
	}
	if c.IngestQueueSize < 0 {
		return fmt.Errorf("ingest_queue_size must not be negative, got %d", c.IngestQueueSize)
	}
	return nil
}

// ArchiveRequestTimeout returns the archive request timeout as a duration.
func (c *SyncEngine) ArchiveRequestTimeout() time.Duration {
	return time.Duration(c.ArchiveRequestTimeoutMS) * time.Millisecond
}

// Load reads a SyncEngine configuration from a YAML file, applying defaults
// for any unset field.
func Load(path string) (*SyncEngine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg SyncEngine
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Defaults()
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
