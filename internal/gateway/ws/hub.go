package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/curator-ai/curator/internal/events"
	"github.com/curator-ai/curator/internal/router"
)

// Dispatcher is the slice of the router the hub needs.
type Dispatcher interface {
	ProcessUtterance(ctx context.Context, title, utterance, lang string) (router.Outcome, error)
	RespondToConfirmation(ctx context.Context, id string, confirmed bool) (router.Outcome, error)
}

// Client represents a connected WebSocket client. A client may narrow its
// event stream to a single conversation.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu           sync.Mutex
	conversation string // empty means all conversations
}

// Hub manages WebSocket clients and bridges them to the event bus.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	bus         *events.Bus
	dispatcher  Dispatcher
	unsubscribe func()
}

// NewHub creates a new WebSocket hub connected to an event bus.
func NewHub(bus *events.Bus, dispatcher Dispatcher) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		bus:        bus,
		dispatcher: dispatcher,
	}

	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		frame, err := NewEventFrame(string(e.Type), e.Conversation, e)
		if err != nil {
			slog.Error("marshal event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("marshal frame", "error", err)
			return
		}
		h.broadcast(e.Conversation, data)
	})

	return h
}

// broadcast sends data to every client interested in the conversation.
func (h *Hub) broadcast(conversation string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(conversation) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (c *Client) wants(conversation string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation == "" || conversation == "" || c.conversation == conversation
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("ws client disconnected", "clients", len(h.clients))
	}
}

// ServeWS handles a WebSocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for dev
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump reads frames from the WS connection and dispatches them.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}

		if frame.Type == FrameTypeRequest {
			c.handleRequest(ctx, frame)
		} else {
			slog.Debug("ws unknown frame type", "type", frame.Type)
		}
	}
}

// handleRequest processes a request frame (method dispatch).
func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	switch frame.Method {
	case MethodSendMessage:
		var params struct {
			Conversation string `json:"conversation"`
			Content      string `json:"content"`
			Lang         string `json:"lang,omitempty"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil || params.Conversation == "" {
			c.sendError(frame.ID, "invalid params")
			return
		}
		out, err := c.hub.dispatcher.ProcessUtterance(ctx, params.Conversation, params.Content, params.Lang)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return
		}
		c.sendOK(frame.ID, out)

	case MethodRespondConfirmation:
		var params struct {
			ID        string `json:"id"`
			Confirmed bool   `json:"confirmed"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil || params.ID == "" {
			c.sendError(frame.ID, "invalid params")
			return
		}
		out, err := c.hub.dispatcher.RespondToConfirmation(ctx, params.ID, params.Confirmed)
		if err != nil {
			c.sendError(frame.ID, err.Error())
			return
		}
		c.sendOK(frame.ID, out)

	case MethodSubscribe:
		var params struct {
			Conversation string `json:"conversation"`
		}
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
		c.mu.Lock()
		c.conversation = params.Conversation
		c.mu.Unlock()
		c.sendOK(frame.ID, map[string]string{"status": "subscribed"})

	default:
		c.sendError(frame.ID, "unknown method: "+frame.Method)
	}
}

// writePump writes queued messages to the WS connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) sendOK(id string, payload any) {
	f, err := NewResponseFrame(id, true, payload, "")
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(id string, errMsg string) {
	f, err := NewResponseFrame(id, false, nil, errMsg)
	if err != nil {
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}
