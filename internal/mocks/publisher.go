package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Push is one event captured by NotifierRecorder.
type Push struct {
	UserID  int
	Type    string
	Payload any
}

// NotifierRecorder records pushes instead of delivering them.
type NotifierRecorder struct {
	mu     sync.Mutex
	Pushes []Push
}

func (n *NotifierRecorder) Publish(userID int, eventType string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Pushes = append(n.Pushes, Push{UserID: userID, Type: eventType, Payload: payload})
}

// Targets returns the user ids that received eventType, in order.
func (n *NotifierRecorder) Targets(eventType string) []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ids []int
	for _, p := range n.Pushes {
		if p.Type == eventType {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}
