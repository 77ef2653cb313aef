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
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-scope/internal/oscillator"
)

// SpeedMessage asks a scope to change its phase increment
type SpeedMessage struct {
	Speed  *float64 `json:"speed"`            // Radians per sample
	Source string   `json:"source,omitempty"` // Who sent it, for logging
}

// SpeedSubscriber applies speed changes received over NATS
type SpeedSubscriber struct {
	natsConn ScopeNATSConnection
	scopeID  string
	target   oscillator.SpeedSetter

	applied  atomic.Uint64
	rejected atomic.Uint64
}

// NewSpeedSubscriber connects to NATS and returns a subscriber driving target
func NewSpeedSubscriber(natsURL, scopeID string, target oscillator.SpeedSetter) (*SpeedSubscriber, error) {
	conn, err := Connect(natsURL)
	if err != nil {
		return nil, err
	}
	return NewSpeedSubscriberWithConnection(conn, scopeID, target), nil
}

// NewSpeedSubscriberWithConnection creates a subscriber on an existing connection (for testing)
func NewSpeedSubscriberWithConnection(natsConn ScopeNATSConnection, scopeID string, target oscillator.SpeedSetter) *SpeedSubscriber {
	return &SpeedSubscriber{
		natsConn: natsConn,
		scopeID:  scopeID,
		target:   target,
	}
}

// Start begins listening for speed messages
func (ss *SpeedSubscriber) Start() error {
	scopeTopic := SpeedSubject(ss.scopeID)
	_, err := ss.natsConn.Subscribe(scopeTopic, ss.handleSpeedMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", scopeTopic, err)
	}

	_, err = ss.natsConn.Subscribe(BroadcastSpeedSubject, ss.handleSpeedMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", BroadcastSpeedSubject, err)
	}

	log.Printf("🎛️ Subscribed to speed topics: %s, %s", scopeTopic, BroadcastSpeedSubject)
	return nil
}

// handleSpeedMessage validates a speed message and forwards it to the target
func (ss *SpeedSubscriber) handleSpeedMessage(msg *nats.Msg) {
	speed, source, err := decodeSpeedMessage(msg.Data)
	if err != nil {
		ss.rejected.Add(1)
		log.Printf("❌ Rejected speed message on %s: %v", msg.Subject, err)
		return
	}

	ss.target.SetSpeed(speed)
	ss.applied.Add(1)
	log.Printf("🎛️ Speed set to %.4f (source=%s)", speed, source)
}

func decodeSpeedMessage(data []byte) (float64, string, error) {
	var m SpeedMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return 0, "", fmt.Errorf("failed to unmarshal speed message: %w", err)
	}
	if m.Speed == nil {
		return 0, "", fmt.Errorf("speed message has no speed")
	}

	speed := *m.Speed
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return 0, "", fmt.Errorf("speed %v is not finite", speed)
	}

	source := m.Source
	if source == "" {
		source = "unknown"
	}
	return speed, source, nil
}

// Applied returns how many speed changes were forwarded
func (ss *SpeedSubscriber) Applied() uint64 {
	return ss.applied.Load()
}

// Rejected returns how many messages were dropped as invalid
func (ss *SpeedSubscriber) Rejected() uint64 {
	return ss.rejected.Load()
}

// Close closes the NATS connection
func (ss *SpeedSubscriber) Close() {
	if ss.natsConn != nil {
		ss.natsConn.Close()
		log.Println("🔌 NATS connection closed")
	}
}
