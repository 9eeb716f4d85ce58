package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// SentRecord captures one message delivered through the mock transport.
type SentRecord struct {
	Phone string
	Body  string
	ID    string
}

// MockTransport is a drop-in transport for local runs and tests. It logs
// instead of sending and can be told to fail specific numbers.
type MockTransport struct {
	mu        sync.Mutex
	sent      []SentRecord
	failFor   map[string]error
	connected bool
	seq       atomic.Int64
	logger    *log.Logger
}

func NewMockTransport(logger *log.Logger) *MockTransport {
	return &MockTransport{
		failFor:   make(map[string]error),
		connected: true,
		logger:    logger,
	}
}

func (m *MockTransport) SendText(_ context.Context, phone, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[phone]; ok {
		return "", err
	}
	id := fmt.Sprintf("mock-%d", m.seq.Add(1))
	m.sent = append(m.sent, SentRecord{Phone: phone, Body: body, ID: id})
	if m.logger != nil {
		m.logger.Printf("mock send to %s: %s", phone, body)
	}
	return id, nil
}

func (m *MockTransport) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SetConnected toggles the simulated connection state.
func (m *MockTransport) SetConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = v
}

// FailPhone makes every send to the number return err.
func (m *MockTransport) FailPhone(phone string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFor[phone] = err
}

// HealPhone removes an injected failure.
func (m *MockTransport) HealPhone(phone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failFor, phone)
}

// Sent returns a copy of everything delivered so far.
func (m *MockTransport) Sent() []SentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentRecord, len(m.sent))
	copy(out, m.sent)
	return out
}
