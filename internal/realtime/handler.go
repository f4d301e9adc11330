package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/leafwatch/leafwatch/internal/errors"
	"github.com/leafwatch/leafwatch/internal/logger"
)

// Client and server event types.
const (
	EventSubscribe              = "ClientWantsToSubscribeToTopic"
	EventUnsubscribe            = "ClientWantsToUnsubscribeFromTopic"
	EventConfirmsSubscription   = "ServerConfirmsSubscription"
	EventConfirmsUnsubscription = "ServerConfirmsUnsubscription"
	EventError                  = "ServerSendsErrorMessage"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // must be < pongWait
	maxMsgSize = 4 * 1024
)

// ClientMessage is a frame sent by a client.
type ClientMessage struct {
	EventType string `json:"eventType"`
	Topic     string `json:"topic"`
}

// ServerMessage is a protocol reply to a client.
type ServerMessage struct {
	EventType string `json:"eventType"`
	Topic     string `json:"topic,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Handler upgrades HTTP requests to websockets and runs the subscription
// protocol against a Registry.
type Handler struct {
	registry     *Registry
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingPeriod   time.Duration
	pongWait     time.Duration
	log          logger.Logger
}

// NewHandler creates a websocket handler for registry.
func NewHandler(registry *Registry, writeTimeout time.Duration, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameOriginOrNone,
		},
		writeTimeout: writeTimeout,
		pingPeriod:   pingPeriod,
		pongWait:     pongWait,
		log:          log.Module("realtime"),
	}
}

// sameOriginOrNone rejects cross-site browser upgrades. Non-browser
// clients omit Origin and are allowed.
func sameOriginOrNone(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// ServeHTTP implements http.Handler. The client id is taken from the
// clientId query parameter, or generated.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return
	}

	socket := NewWSSocket(conn, h.writeTimeout)
	h.registry.OnOpen(socket, clientID)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.pingLoop(socket, done)
	}()

	defer func() {
		h.registry.OnClose(socket, clientID)
		_ = socket.Close()
		close(done)
		wg.Wait()
	}()

	h.readLoop(conn, socket, clientID)
}

// pingLoop keeps the pong deadline moving while the client is idle.
func (h *Handler) pingLoop(socket *WSSocket, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := socket.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, socket *WSSocket, clientID string) {
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read failed",
					logger.String("client_id", clientID),
					logger.Error(err))
			}
			return
		}
		reply := h.handleFrame(socket, clientID, data)
		payload, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		if err := socket.Send(context.Background(), payload); err != nil {
			return
		}
	}
}

// handleFrame applies one client frame and returns the reply.
func (h *Handler) handleFrame(socket *WSSocket, clientID string, data []byte) ServerMessage {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{EventType: EventError, Message: "invalid message"}
	}
	if msg.Topic == "" && (msg.EventType == EventSubscribe || msg.EventType == EventUnsubscribe) {
		return ServerMessage{EventType: EventError, Message: "topic is required"}
	}

	// A replaced connection must not mutate the newer connection's state.
	current, err := h.registry.GetSocketFromClientID(clientID)
	if err != nil || current.ID() != socket.ID() {
		if err == nil {
			err = ErrSocketNotFound
		}
		return ServerMessage{EventType: EventError, Message: errorText(err)}
	}

	switch msg.EventType {
	case EventSubscribe:
		h.registry.AddToTopic(msg.Topic, clientID)
		return ServerMessage{EventType: EventConfirmsSubscription, Topic: msg.Topic}
	case EventUnsubscribe:
		h.registry.RemoveFromTopic(msg.Topic, clientID)
		return ServerMessage{EventType: EventConfirmsUnsubscription, Topic: msg.Topic}
	default:
		return ServerMessage{EventType: EventError, Message: "unknown event type " + msg.EventType}
	}
}

func errorText(err error) string {
	switch {
	case errors.Is(err, ErrClientNotFound):
		return "connection is not registered"
	case errors.Is(err, ErrSocketNotFound):
		return "connection was replaced"
	default:
		return err.Error()
	}
}
