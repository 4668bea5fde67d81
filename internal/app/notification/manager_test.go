package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu       sync.Mutex
	received []*Notification
	err      error
	block    chan struct{}
}

func (s *recordingStream) Send(n *Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.received = append(s.received, n)
	return nil
}

func (s *recordingStream) get() []*Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Notification(nil), s.received...)
}

func TestManager_BroadcastSequence(t *testing.T) {
	m := NewManager()
	a, b := &recordingStream{}, &recordingStream{}
	m.Subscribe(a)
	m.Subscribe(b)
	require.Equal(t, 2, m.SubscriberCount())

	m.Broadcast(Connection(true))
	m.Broadcast(Scene("Game"))

	for _, s := range []*recordingStream{a, b} {
		got := s.get()
		require.Len(t, got, 2)
		assert.Equal(t, uint64(1), got[0].SequenceNo)
		assert.Equal(t, TypeConnection, got[0].Type)
		assert.Equal(t, ConnectionData{Connected: true}, got[0].Data)
		assert.Equal(t, uint64(2), got[1].SequenceNo)
		assert.Equal(t, SceneData{Name: "Game"}, got[1].Data)
	}
}

func TestManager_DropsFailingSubscriber(t *testing.T) {
	m := NewManager()
	good := &recordingStream{}
	bad := &recordingStream{err: errors.New("closed")}
	m.Subscribe(good)
	m.Subscribe(bad)

	m.Broadcast(Recording("started", "/rec/a.mkv"))

	assert.Equal(t, 1, m.SubscriberCount())
	assert.Len(t, good.get(), 1)
}

func TestManager_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager()
	slow := &recordingStream{block: make(chan struct{})}
	defer close(slow.block)
	fast := &recordingStream{}
	m.Subscribe(slow)
	m.Subscribe(fast)

	start := time.Now()
	m.Broadcast(Stage("game", 3))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, fast.get(), 1)
	assert.Equal(t, 2, m.SubscriberCount())
}

func TestManager_UnsubscribeAndSend(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	id := m.Subscribe(s)

	require.NoError(t, m.Send(id, Streaming("started")))
	assert.Len(t, s.get(), 1)

	m.Unsubscribe(id)
	m.Unsubscribe(id)
	assert.Zero(t, m.SubscriberCount())
	assert.NoError(t, m.Send(id, Streaming("stopped")))
	assert.Len(t, s.get(), 1)

	m.Subscribe(&recordingStream{})
	m.Close()
	assert.Zero(t, m.SubscriberCount())
}
