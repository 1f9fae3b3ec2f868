package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/flowreels/api/internal/model"
	"github.com/flowreels/api/internal/observer"
	"github.com/flowreels/api/internal/realtime"
)

// Client represents a WebSocket client
type Client struct {
	VideoID string
	Conn    *websocket.Conn
	Send    chan []byte
}

// Hub maintains active WebSocket connections. Each connection owns its own
// observer, so status events come from the per-video change feed rather
// than a process-wide broadcast.
type Hub struct {
	// Clients grouped by video ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	reader observer.JobReader
	feed   realtime.Feed
	opts   observer.Options

	mu sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(reader observer.JobReader, feed realtime.Feed, opts observer.Options) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		reader:     reader,
		feed:       feed,
		opts:       opts,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.VideoID] == nil {
				h.clients[client.VideoID] = make(map[*Client]bool)
			}
			h.clients[client.VideoID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for video %s", client.VideoID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.VideoID]; ok {
				if _, ok := clients[client]; ok {
					// Send is never closed; the writer exits on ctx.Done so a
					// late forwarder send cannot hit a closed channel.
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.clients, client.VideoID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from video %s", client.VideoID)
		}
	}
}

// ClientCount returns the number of open connections for a video
func (h *Hub) ClientCount(videoID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[videoID])
}

// HandleConnection serves one WebSocket connection for one video. It blocks
// until the client disconnects; observation stops with the connection.
func (h *Hub) HandleConnection(c *websocket.Conn, videoID string) {
	client := &Client{
		VideoID: videoID,
		Conn:    c,
		Send:    make(chan []byte, 256),
	}

	h.register <- client
	defer func() { h.unregister <- client }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := observer.New(videoID, h.reader, h.feed, h.opts)
	obs.Start(ctx)
	defer obs.Stop()

	// Observer events become wire messages. Events is never closed, so the
	// forwarder must leave via Done or the connection context.
	go func() {
		for {
			var ev observer.Event
			select {
			case ev = <-obs.Events():
			case <-obs.Done():
				return
			case <-ctx.Done():
				return
			}

			data, err := encodeEvent(ev)
			if err != nil {
				log.Printf("Failed to marshal %s message: %v", ev.Type, err)
				continue
			}
			select {
			case client.Send <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message := <-client.Send:
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}

			case <-ctx.Done():
				c.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			select {
			case client.Send <- data:
			case <-ctx.Done():
			}
		}
	}
}

func encodeEvent(ev observer.Event) ([]byte, error) {
	switch ev.Type {
	case observer.EventProgress:
		return json.Marshal(model.WSProgressMessage{
			Type:     model.WSMessageTypeProgress,
			VideoID:  ev.VideoID,
			Progress: ev.Progress,
			Status:   ev.Status,
		})
	case observer.EventCompleted:
		return json.Marshal(model.WSCompleteMessage{
			Type:    model.WSMessageTypeComplete,
			VideoID: ev.VideoID,
		})
	case observer.EventError:
		return json.Marshal(model.WSErrorMessage{
			Type:    model.WSMessageTypeError,
			VideoID: ev.VideoID,
			Error: model.WSError{
				Code:    "ANALYSIS_FAILED",
				Message: ev.Message,
			},
		})
	case observer.EventDegraded:
		return json.Marshal(model.WSDegradedMessage{
			Type:    model.WSMessageTypeDegraded,
			VideoID: ev.VideoID,
			Reason:  ev.Message,
		})
	case observer.EventRedirect:
		return json.Marshal(model.WSRedirectMessage{
			Type:    model.WSMessageTypeRedirect,
			VideoID: ev.VideoID,
			Path:    fmt.Sprintf("/reels/%s/feedback", ev.VideoID),
		})
	}
	return nil, fmt.Errorf("unknown event type %q", ev.Type)
}
