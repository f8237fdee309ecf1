package ws

import (
	"sync"

	"github.com/quackamole-dev/quackamole-relay/conns"
	"github.com/quackamole-dev/quackamole-relay/globals"
)

const (
	publishChannelSize = 1000
)

type envelope struct {
	topic string
	data  []byte
}

// Hub is the single-process pub/sub primitive: connections subscribe to named
// topics and a publish reaches every current subscriber. It also owns the set
// of registered websocket clients; registering and unregistering go through
// the run loop, topic manipulation is lock-based because it happens inside
// request handling.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// topic -> subscribed senders
	topics map[string]map[conns.Sender]struct{}

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	publish chan envelope

	// guards clients and topics
	sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		topics:     make(map[string]map[conns.Sender]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		publish:    make(chan envelope, publishChannelSize),
	}
}

// NoClients returns the number of clients registered.
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Subscribe adds a sender to a topic, creating the topic on first use.
func (h *Hub) Subscribe(s conns.Sender, topic string) {
	h.Lock()
	defer h.Unlock()
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[conns.Sender]struct{})
	}
	h.topics[topic][s] = struct{}{}
}

// Unsubscribe removes a sender from a topic. An empty topic is forgotten.
func (h *Hub) Unsubscribe(s conns.Sender, topic string) {
	h.Lock()
	defer h.Unlock()
	h.dropSubscription(s, topic)
}

func (h *Hub) dropSubscription(s conns.Sender, topic string) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Publish enqueues a message for every subscriber of the topic. Delivery
// happens in the run loop, preserving the order of publishes per sender.
func (h *Hub) Publish(topic string, data []byte) {
	h.publish <- envelope{topic: topic, data: data}
}

// Run is the main hub event loop handling register, unregister and publish.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			globals.AppLogger.Debug("register new client")
			h.Lock()
			h.clients[client] = struct{}{}
			h.Unlock()
			client.Done()

		case client := <-h.Unregister:
			h.Lock()
			if _, ok := h.clients[client]; ok {
				globals.AppLogger.Debug("unregister client")
				delete(h.clients, client)
				for topic := range h.topics {
					h.dropSubscription(client, topic)
				}
				client.conn.Close()
				// all sends go through Client.Send which checks membership
				// under the hub lock, so closing here cannot race a write
				close(client.send)
			}
			h.Unlock()

		case m := <-h.publish:
			h.RLock()
			subscribers := make([]conns.Sender, 0, len(h.topics[m.topic]))
			for s := range h.topics[m.topic] {
				subscribers = append(subscribers, s)
			}
			h.RUnlock()
			for _, s := range subscribers {
				if err := s.Send(m.data); err != nil {
					globals.AppLogger.Debug("dropped publish to subscriber", "topic", m.topic, "error", err)
				}
			}
		}
	}
}
