package ws

import (
	"encoding/json"
	"sync"

	"diagnostics/internal/logger"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Student message types. Domain events use the names the services broadcast.
const (
	MsgConnected MessageType = "connected"
	MsgError     MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages WebSocket connections per student. A student may have several
// tabs or devices open; every one of them receives the student's events.
type Hub struct {
	conns map[string]map[*Connection]struct{} // studentID -> connections

	mu  sync.RWMutex
	log *logger.Logger

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	closeOnce  sync.Once
}

// Connection represents a WebSocket connection
type Connection struct {
	StudentID string
	Send      chan []byte
	Hub       *Hub
}

// BroadcastMessage is a message addressed to one student
type BroadcastMessage struct {
	StudentID string
	Message   *Message
}

// NewHub creates a new WebSocket hub and starts its event loop
func NewHub(log *logger.Logger) *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		log:        log.With("component", "ws.Hub"),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for studentID, set := range h.conns {
				for conn := range set {
					close(conn.Send)
				}
				delete(h.conns, studentID)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.StudentID] == nil {
				h.conns[conn.StudentID] = make(map[*Connection]struct{})
			}
			h.conns[conn.StudentID][conn] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("student connected", "student_id", conn.StudentID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.conns[conn.StudentID]; ok {
				if _, ok := set[conn]; ok {
					delete(set, conn)
					close(conn.Send)
					if len(set) == 0 {
						delete(h.conns, conn.StudentID)
					}
					h.log.Debug("student disconnected", "student_id", conn.StudentID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Message)
			if err != nil {
				h.log.Error("failed to encode ws message", "type", msg.Message.Type, "error", err)
				continue
			}
			h.mu.RLock()
			for conn := range h.conns[msg.StudentID] {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// ConnectionCount reports how many sockets a student has open
func (h *Hub) ConnectionCount(studentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[studentID])
}

// BroadcastToStudent sends an event to every connection of a student (implements service.Broadcaster).
// It never blocks the caller: when the queue is full the event is dropped.
func (h *Hub) BroadcastToStudent(studentID string, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to encode ws payload", "type", msgType, "error", err)
		return
	}
	msg := &BroadcastMessage{
		StudentID: studentID,
		Message:   &Message{Type: MessageType(msgType), Payload: data},
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.log.Warn("ws broadcast queue full, dropping event", "student_id", studentID, "type", msgType)
	}
}

// Close stops the event loop and closes every open connection
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
