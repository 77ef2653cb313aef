/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/loqalabs/loqa-scope/internal/audio"
)

// StatusMessage is the periodic health report of a scope
type StatusMessage struct {
	ScopeID       string  `json:"id"`
	Speed         float64 `json:"speed"`
	Blocks        uint64  `json:"blocks"`
	DroppedBlocks uint64  `json:"dropped_blocks"`
	DeviceErrors  uint64  `json:"device_errors"`
	Timestamp     int64   `json:"timestamp"` // Unix milliseconds
}

// StatsSource provides the counters to report
type StatsSource interface {
	Stats() audio.StreamStats
}

// StatusPublisher reports stream stats on a fixed interval
type StatusPublisher struct {
	natsConn ScopeNATSConnection
	scopeID  string
	source   StatsSource
	interval time.Duration
	now      func() time.Time
}

// NewStatusPublisher creates a publisher on an existing connection
func NewStatusPublisher(natsConn ScopeNATSConnection, scopeID string, source StatsSource, interval time.Duration) *StatusPublisher {
	return &StatusPublisher{
		natsConn: natsConn,
		scopeID:  scopeID,
		source:   source,
		interval: interval,
		now:      time.Now,
	}
}

// PublishOnce sends a single status message
func (sp *StatusPublisher) PublishOnce() error {
	stats := sp.source.Stats()
	msg := StatusMessage{
		ScopeID:       sp.scopeID,
		Speed:         stats.Speed,
		Blocks:        stats.Blocks,
		DroppedBlocks: stats.DroppedBlocks,
		DeviceErrors:  stats.DeviceErrors,
		Timestamp:     sp.now().UnixMilli(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	subject := StatusSubject(sp.scopeID)
	if err := sp.natsConn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Run publishes until ctx is cancelled. Publish failures are logged and the
// loop keeps going.
func (sp *StatusPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(sp.interval)
	defer ticker.Stop()

	log.Printf("📡 Publishing status to %s every %v", StatusSubject(sp.scopeID), sp.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sp.PublishOnce(); err != nil {
				log.Printf("⚠️  Status publish failed: %v", err)
			}
		}
	}
}
