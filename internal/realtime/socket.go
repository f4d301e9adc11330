package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/leafwatch/leafwatch/internal/errors"
)

// ErrSocketClosed is returned when sending on a closed socket.
var ErrSocketClosed = errors.NewStd("socket closed")

// DefaultWriteTimeout bounds a single websocket write.
const DefaultWriteTimeout = 10 * time.Second

// WSSocket adapts a gorilla websocket connection to Socket. gorilla allows
// one concurrent writer, so all writes go through writeMu.
type WSSocket struct {
	id           string
	conn         *websocket.Conn
	writeMu      sync.Mutex
	closed       atomic.Bool
	writeTimeout time.Duration
}

// NewWSSocket wraps conn. A non-positive writeTimeout uses DefaultWriteTimeout.
func NewWSSocket(conn *websocket.Conn, writeTimeout time.Duration) *WSSocket {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &WSSocket{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// ID implements Socket.
func (s *WSSocket) ID() string { return s.id }

// IsAvailable implements Socket.
func (s *WSSocket) IsAvailable() bool { return !s.closed.Load() }

// Send implements Socket. The write deadline is the earlier of the context
// deadline and the socket write timeout.
func (s *WSSocket) Send(ctx context.Context, data []byte) error {
	return s.write(ctx, websocket.TextMessage, data)
}

func (s *WSSocket) ping() error {
	return s.write(context.Background(), websocket.PingMessage, nil)
}

func (s *WSSocket) write(ctx context.Context, messageType int, data []byte) error {
	if s.closed.Load() {
		return ErrSocketClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		s.closed.Store(true)
		return err
	}
	return nil
}

// Close marks the socket unavailable and closes the connection.
func (s *WSSocket) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}
