package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quackamole-dev/quackamole-relay/conns"
	"github.com/quackamole-dev/quackamole-relay/globals"
	"github.com/quackamole-dev/quackamole-relay/relay"
)

const (
	maxMessageSize  = 65536
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 1000
)

var (
	ErrClientGone     = errors.New("client is unregistered")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is the middleman between one websocket connection and the hub. It
// implements conns.Sender, so the dispatcher can address it without knowing
// about websockets.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	dispatcher *relay.Dispatcher

	// Record is the connection registry record for this channel.
	Record *conns.Connection

	doneChan chan struct{}

	// Keeps track of the running loops; when it is done it is safe to close
	// the channels.
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, dispatcher *relay.Dispatcher, doneChan chan struct{}) *Client {
	c := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendChannelSize),
		dispatcher: dispatcher,
		doneChan:   doneChan,
	}
	c.Record = dispatcher.OpenConnection(c)
	return c
}

// Send queues data for the write loop. It only writes to the channel while
// the client is still registered (checked under the hub lock, which also
// guards the close), and drops instead of blocking when the buffer is full.
func (c *Client) Send(data []byte) error {
	c.hub.RLock()
	defer c.hub.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return ErrClientGone
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// ReadLoop pumps messages from the websocket connection to the dispatcher.
//
// The application runs ReadLoop in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
		c.Done()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("ws closed unexpected", "error", err)
			}
			return
		}
		c.dispatcher.HandleFrame(c.Record, raw)
	}
}

// WriteLoop pumps messages from the send channel to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
