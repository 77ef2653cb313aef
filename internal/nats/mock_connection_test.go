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
	"sync"

	"github.com/nats-io/nats.go"
)

// publishedMsg records a Publish call
type publishedMsg struct {
	subject string
	data    []byte
}

// MockScopeNATSConnection is an in-memory ScopeNATSConnection
type MockScopeNATSConnection struct {
	mu           sync.RWMutex
	subscribers  map[string][]nats.MsgHandler
	connected    bool
	closed       int
	errors       map[string]error
	publishError error
	published    []publishedMsg
}

func NewMockScopeNATSConnection() *MockScopeNATSConnection {
	return &MockScopeNATSConnection{
		subscribers: make(map[string][]nats.MsgHandler),
		connected:   true,
		errors:      make(map[string]error),
	}
}

func (m *MockScopeNATSConnection) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, nats.ErrConnectionClosed
	}

	if err, exists := m.errors[subject]; exists {
		return nil, err
	}

	m.subscribers[subject] = append(m.subscribers[subject], handler)
	return &nats.Subscription{}, nil
}

func (m *MockScopeNATSConnection) Publish(subject string, data []byte) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nats.ErrConnectionClosed
	}
	if m.publishError != nil {
		err := m.publishError
		m.mu.Unlock()
		return err
	}
	m.published = append(m.published, publishedMsg{subject: subject, data: append([]byte(nil), data...)})
	m.mu.Unlock()

	m.Deliver(subject, data)
	return nil
}

// Deliver runs the handlers subscribed to subject synchronously
func (m *MockScopeNATSConnection) Deliver(subject string, data []byte) int {
	m.mu.RLock()
	handlers := append([]nats.MsgHandler(nil), m.subscribers[subject]...)
	m.mu.RUnlock()

	for _, handler := range handlers {
		handler(&nats.Msg{Subject: subject, Data: data})
	}
	return len(handlers)
}

func (m *MockScopeNATSConnection) Published() []publishedMsg {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]publishedMsg(nil), m.published...)
}

func (m *MockScopeNATSConnection) SetError(subject string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[subject] = err
}

func (m *MockScopeNATSConnection) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

func (m *MockScopeNATSConnection) Subjects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var subjects []string
	for s := range m.subscribers {
		subjects = append(subjects, s)
	}
	return subjects
}

func (m *MockScopeNATSConnection) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockScopeNATSConnection) Close() {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	m.Disconnect()
}
