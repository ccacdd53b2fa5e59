package testutil

import (
	"context"
	"sync"

	"armpose/internal/operations"
)

// MockStage is a configurable operations.Step
type MockStage struct {
	IDValue           string
	NameValue         string
	DependenciesValue []string

	ExecuteFunc  func(ctx context.Context, state *operations.OperationState) error
	ValidateFunc func(state *operations.OperationState) error

	mu            sync.Mutex
	executeCalls  int
	validateCalls int
}

func (m *MockStage) ID() string { return m.IDValue }

func (m *MockStage) Name() string {
	if m.NameValue == "" {
		return m.IDValue
	}
	return m.NameValue
}

func (m *MockStage) GetDependencies() []string { return m.DependenciesValue }

func (m *MockStage) Execute(ctx context.Context, state *operations.OperationState) error {
	m.mu.Lock()
	m.executeCalls++
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, state)
	}
	return nil
}

func (m *MockStage) Validate(state *operations.OperationState) error {
	m.mu.Lock()
	m.validateCalls++
	m.mu.Unlock()

	if m.ValidateFunc != nil {
		return m.ValidateFunc(state)
	}
	return nil
}

// ExecuteCalls returns how many times Execute ran
func (m *MockStage) ExecuteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executeCalls
}

// ValidateCalls returns how many times Validate ran
func (m *MockStage) ValidateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateCalls
}

// WebSocketMessage is one recorded broadcast
type WebSocketMessage struct {
	EventType string
	Step      string
	Status    string
	Metadata  interface{}
}

// MockWebSocketHub records every broadcast
type MockWebSocketHub struct {
	mu       sync.Mutex
	messages []WebSocketMessage
}

func (m *MockWebSocketHub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, WebSocketMessage{
		EventType: eventType,
		Step:      step,
		Status:    status,
		Metadata:  metadata,
	})
}

// GetMessages returns a copy of the recorded broadcasts
func (m *MockWebSocketHub) GetMessages() []WebSocketMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WebSocketMessage(nil), m.messages...)
}

// GetMessagesByType returns the recorded broadcasts of one event type
func (m *MockWebSocketHub) GetMessagesByType(eventType string) []WebSocketMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []WebSocketMessage
	for _, msg := range m.messages {
		if msg.EventType == eventType {
			out = append(out, msg)
		}
	}
	return out
}

// LastSnapshot returns the metadata of the last operation snapshot
func (m *MockWebSocketHub) LastSnapshot() (*operations.OperationSnapshot, bool) {
	msgs := m.GetMessagesByType(operations.EventTypeOperationSnapshot)
	if len(msgs) == 0 {
		return nil, false
	}
	snap, ok := msgs[len(msgs)-1].Metadata.(*operations.OperationSnapshot)
	return snap, ok
}
