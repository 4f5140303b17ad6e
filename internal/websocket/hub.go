package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/meetscribe/api/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub maintains active WebSocket connections, grouped by job id, and pushes
// progress events so clients do not need to poll the status endpoint.
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.JobID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.JobID)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients[msg.JobID] {
				select {
				case client.Send <- msg.Message:
				default:
					// Slow consumer; drop the connection.
					go func(c *Client) { h.unregister <- c }(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleConnection manages a WebSocket connection subscribed to one job.
func (h *Hub) HandleConnection(conn *websocket.Conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Conn:  conn,
		Send:  make(chan []byte, 64),
	}
	h.register <- client

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, ok := <-client.Send
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	// Read loop: the client only ever sends pings; anything else is ignored.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg model.WSMessage
		if json.Unmarshal(raw, &msg) == nil && msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case client.Send <- pong:
			default:
			}
		}
	}

	h.unregister <- client
	<-done
}

// BroadcastProgress pushes a progress update to a job's subscribers.
func (h *Hub) BroadcastProgress(jobID string, status model.JobStatus, phase model.JobPhase, percent int, text string) {
	msg := model.WSProgressMessage{
		Type:            model.WSMessageTypeProgress,
		JobID:           jobID,
		Status:          status,
		Phase:           phase,
		ProgressPercent: percent,
		ProgressText:    text,
	}
	h.send(jobID, msg)
}

// BroadcastComplete pushes the final job view to a job's subscribers.
func (h *Hub) BroadcastComplete(jobID string, job model.JobDetail) {
	msg := model.WSCompleteMessage{
		Type:  model.WSMessageTypeComplete,
		JobID: jobID,
		Job:   job,
	}
	h.send(jobID, msg)
}

// BroadcastError pushes an error event to a job's subscribers.
func (h *Hub) BroadcastError(jobID, code, message string) {
	msg := model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{Code: code, Message: message},
	}
	h.send(jobID, msg)
}

func (h *Hub) send(jobID string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to marshal websocket message: %v", err)
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{JobID: jobID, Message: data}:
	default:
		log.Printf("Websocket broadcast buffer full, dropping message for job %s", jobID)
	}
}
