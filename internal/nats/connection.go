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
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	connectAttempts   = 5
	connectRetryDelay = 2 * time.Second
)

// ScopeNATSConnection interface for dependency injection
type ScopeNATSConnection interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

// ScopeNATSConnectionAdapter adapts *nats.Conn to ScopeNATSConnection interface
type ScopeNATSConnectionAdapter struct {
	conn *nats.Conn
}

func NewScopeNATSConnectionAdapter(conn *nats.Conn) *ScopeNATSConnectionAdapter {
	return &ScopeNATSConnectionAdapter{conn: conn}
}

func (r *ScopeNATSConnectionAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return r.conn.Subscribe(subject, cb)
}

func (r *ScopeNATSConnectionAdapter) Publish(subject string, data []byte) error {
	return r.conn.Publish(subject, data)
}

func (r *ScopeNATSConnectionAdapter) Close() {
	r.conn.Close()
}

// Connect dials natsURL, retrying a few times before giving up
func Connect(natsURL string) (*ScopeNATSConnectionAdapter, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < connectAttempts; i++ {
		nc, err = nats.Connect(natsURL, nats.Name("loqa-scope"))
		if err == nil {
			break
		}
		log.Printf("⚠️  Failed to connect to NATS (attempt %d/%d): %v", i+1, connectAttempts, err)
		if i < connectAttempts-1 {
			time.Sleep(connectRetryDelay)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", connectAttempts, err)
	}

	log.Printf("✅ Connected to NATS at %s", natsURL)
	return NewScopeNATSConnectionAdapter(nc), nil
}

// SpeedSubject is the per-instance speed control subject
func SpeedSubject(scopeID string) string {
	return fmt.Sprintf("scope.%s.speed", scopeID)
}

// BroadcastSpeedSubject reaches every scope
const BroadcastSpeedSubject = "scope.broadcast.speed"

// StatusSubject is where an instance publishes its status
func StatusSubject(scopeID string) string {
	return fmt.Sprintf("scope.%s.status", scopeID)
}
