package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSender struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (s *memSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, data)
	return nil
}

func (s *memSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestPublishReachesSubscribers(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a, b, c := &memSender{}, &memSender{}, &memSender{}
	hub.Subscribe(a, "rooms/1")
	hub.Subscribe(b, "rooms/1")
	hub.Subscribe(c, "rooms/2")

	hub.Publish("rooms/1", []byte("hello"))

	require.Eventually(t, func() bool {
		return a.count() == 1 && b.count() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.count())

	hub.Unsubscribe(b, "rooms/1")
	hub.Publish("rooms/1", []byte("again"))

	require.Eventually(t, func() bool {
		return a.count() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, b.count())
}

func TestPublishUnknownTopic(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// publishing into the void must not block or panic
	hub.Publish("rooms/none", []byte("hello"))

	s := &memSender{}
	hub.Subscribe(s, "rooms/none")
	hub.Publish("rooms/none", []byte("hello"))
	require.Eventually(t, func() bool {
		return s.count() == 1
	}, time.Second, 5*time.Millisecond)
}
