package mqtt

import (
	"sync"

	"github.com/expeditorhq/expeditor/core/dispatch"
	coremqtt "github.com/expeditorhq/expeditor/core/mqtt"
)

// FeedPublisher mirrors the core mqtt publisher interface.
type FeedPublisher = coremqtt.FeedPublisher

// MockFeedPublisher records published feeds for tests.
type MockFeedPublisher struct {
	mu    sync.Mutex
	Feeds map[string][]dispatch.ItemView
	Err   error
}

// NewMockFeedPublisher creates an empty mock publisher.
func NewMockFeedPublisher() *MockFeedPublisher {
	return &MockFeedPublisher{Feeds: make(map[string][]dispatch.ItemView)}
}

// PublishFeed stores the latest views for the station or returns the
// configured error.
func (m *MockFeedPublisher) PublishFeed(stationID string, views []dispatch.ItemView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Feeds[stationID] = views
	return nil
}

// Published returns the last feed recorded for the station.
func (m *MockFeedPublisher) Published(stationID string) []dispatch.ItemView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Feeds[stationID]
}
