package control

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"pokezero/gamemaster"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

// FeedMessage is what subscribers receive for every stored turn.
type FeedMessage struct {
	Turn   int       `json:"turn"`
	ID     int       `json:"id"`
	Vector []float64 `json:"vector,omitempty"`
	Error  string    `json:"error,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts turns to websocket subscribers. A subscriber that falls behind by more than
// sendBuffer messages misses the newer ones.
type Hub struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: map[*subscriber]struct{}{},
	}
}

// Publish implements gamemaster.Publisher.
func (h *Hub) Publish(turn *gamemaster.Turn) {
	msg := FeedMessage{Turn: turn.Index, ID: turn.StateID, Vector: turn.Vector}
	if turn.Err != nil {
		msg.Error = turn.Err.Error()
	}
	out, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msgf("feed: cannot encode turn %d", turn.Index)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- out:
		default:
			log.Warn().Msgf("feed: subscriber %s is behind, dropping turn %d", sub.conn.RemoteAddr(), turn.Index)
		}
	}
}

// Len is the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and subscribes the connection to the feed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("feed: upgrade failed")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.subs[sub] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()
	log.Debug().Msgf("feed: %s subscribed", conn.RemoteAddr())

	go h.writeLoop(sub)
	go h.readLoop(sub)
}

func (h *Hub) writeLoop(sub *subscriber) {
	defer h.wg.Done()
	defer sub.conn.Close()
	for msg := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Debug().Err(err).Msg("feed: write failed")
			h.remove(sub)
			return
		}
	}
	sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// readLoop only watches for the subscriber going away.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.wg.Done()
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			h.remove(sub)
			return
		}
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.send)
	log.Debug().Msgf("feed: %s unsubscribed", sub.conn.RemoteAddr())
}

// Close disconnects every subscriber and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.send)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

var _ gamemaster.Publisher = (*Hub)(nil)
