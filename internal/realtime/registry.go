// Package realtime tracks live client connections and their topic
// subscriptions, and fans messages out to subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/leafwatch/leafwatch/internal/errors"
	"github.com/leafwatch/leafwatch/internal/logger"
	"github.com/leafwatch/leafwatch/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// Lookup errors.
var (
	ErrClientNotFound = errors.NewStd("client not found")
	ErrSocketNotFound = errors.NewStd("socket not found")
)

// DefaultBroadcastConcurrency bounds concurrent sends per broadcast.
const DefaultBroadcastConcurrency = 16

// Socket is a live connection the registry can push to.
type Socket interface {
	// ID uniquely identifies the underlying connection.
	ID() string
	// IsAvailable reports whether the connection can still be written to.
	IsAvailable() bool
	// Send writes one text frame.
	Send(ctx context.Context, data []byte) error
}

type set map[string]struct{}

// Registry maps client ids to sockets and clients to topics. All methods
// are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	clients     map[string]Socket // clientID -> socket
	sockets     map[string]string // socket ID -> clientID
	topics      map[string]set    // topic -> clientIDs
	memberships map[string]set    // clientID -> topics

	concurrency int
	metrics     *telemetry.Metrics
	log         logger.Logger
}

// NewRegistry creates an empty registry. concurrency bounds parallel sends
// per broadcast; non-positive uses DefaultBroadcastConcurrency.
func NewRegistry(concurrency int, metrics *telemetry.Metrics, log logger.Logger) *Registry {
	if concurrency <= 0 {
		concurrency = DefaultBroadcastConcurrency
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Registry{
		clients:     make(map[string]Socket),
		sockets:     make(map[string]string),
		topics:      make(map[string]set),
		memberships: make(map[string]set),
		concurrency: concurrency,
		metrics:     metrics,
		log:         log.Module("realtime"),
	}
}

// OnOpen registers socket for clientID. An existing socket for the same
// client is replaced without being closed; its subscriptions carry over.
func (r *Registry) OnOpen(socket Socket, clientID string) {
	r.mu.Lock()
	if old, ok := r.clients[clientID]; ok {
		delete(r.sockets, old.ID())
	}
	r.clients[clientID] = socket
	r.sockets[socket.ID()] = clientID
	count := len(r.clients)
	r.mu.Unlock()

	r.metrics.SetConnections(count)
	r.log.Debug("client connected",
		logger.String("client_id", clientID),
		logger.Int("connections", count))
}

// OnClose removes clientID and its subscriptions. Closing a socket that
// has already been replaced by a newer connection only forgets the stale
// socket. Memberships are scrubbed rather than left behind, so a client
// reconnecting under the same id starts with no topics and must subscribe
// again.
func (r *Registry) OnClose(socket Socket, clientID string) {
	r.mu.Lock()
	delete(r.sockets, socket.ID())
	current, ok := r.clients[clientID]
	if !ok || current.ID() != socket.ID() {
		r.mu.Unlock()
		return
	}
	delete(r.clients, clientID)
	for topic := range r.memberships[clientID] {
		r.removeMemberLocked(topic, clientID)
	}
	delete(r.memberships, clientID)
	count := len(r.clients)
	r.mu.Unlock()

	r.metrics.SetConnections(count)
	r.log.Debug("client disconnected",
		logger.String("client_id", clientID),
		logger.Int("connections", count))
}

// AddToTopic subscribes clientID to topic. Repeated calls are no-ops.
func (r *Registry) AddToTopic(topic, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.topics[topic] == nil {
		r.topics[topic] = make(set)
	}
	r.topics[topic][clientID] = struct{}{}
	if r.memberships[clientID] == nil {
		r.memberships[clientID] = make(set)
	}
	r.memberships[clientID][topic] = struct{}{}
}

// RemoveFromTopic unsubscribes clientID from topic. Removing an absent
// membership is a no-op.
func (r *Registry) RemoveFromTopic(topic, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeMemberLocked(topic, clientID)
	if topics, ok := r.memberships[clientID]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(r.memberships, clientID)
		}
	}
}

func (r *Registry) removeMemberLocked(topic, clientID string) {
	members, ok := r.topics[topic]
	if !ok {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(r.topics, topic)
	}
}

// BroadcastToTopic serializes message once and sends it to every available
// subscriber of topic. []byte and json.RawMessage are sent as is. Send
// failures are logged per recipient and never abort the broadcast; only a
// serialization failure is returned. Unknown topics are a no-op.
func (r *Registry) BroadcastToTopic(ctx context.Context, topic string, message any) error {
	recipients := r.recipients(topic)
	if len(recipients) == 0 {
		return nil
	}

	data, err := encode(message)
	if err != nil {
		return errors.New(err).
			Component("realtime").
			Category(errors.CategoryDelivery).
			Context("topic", topic).
			Build()
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, rc := range recipients {
		if !rc.socket.IsAvailable() {
			r.metrics.BroadcastSend(telemetry.ResultSkipped)
			continue
		}
		g.Go(func() error {
			r.send(ctx, topic, rc, data)
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

type recipient struct {
	clientID string
	socket   Socket
}

// recipients snapshots the registered sockets subscribed to topic.
func (r *Registry) recipients(topic string) []recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.topics[topic]
	out := make([]recipient, 0, len(members))
	for clientID := range members {
		if socket, ok := r.clients[clientID]; ok {
			out = append(out, recipient{clientID: clientID, socket: socket})
		}
	}
	return out
}

// send delivers to one recipient, recovering from a panicking socket.
func (r *Registry) send(ctx context.Context, topic string, rc recipient, data []byte) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.BroadcastSend(telemetry.ResultFailed)
			r.log.Error("socket send panicked",
				logger.String("topic", topic),
				logger.String("client_id", rc.clientID),
				logger.Any("panic", p))
		}
	}()
	if err := rc.socket.Send(ctx, data); err != nil {
		r.metrics.BroadcastSend(telemetry.ResultFailed)
		r.log.Warn("failed to send to client",
			logger.String("topic", topic),
			logger.String("client_id", rc.clientID),
			logger.Error(err))
		return
	}
	r.metrics.BroadcastSend(telemetry.ResultSent)
}

func encode(message any) ([]byte, error) {
	switch m := message.(type) {
	case []byte:
		return m, nil
	case json.RawMessage:
		return m, nil
	default:
		return json.Marshal(message)
	}
}

// GetMembersFromTopicID returns the client ids subscribed to topic, sorted.
func (r *Registry) GetMembersFromTopicID(topic string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.topics[topic])
}

// GetTopicsFromMemberID returns the topics clientID is subscribed to, sorted.
func (r *Registry) GetTopicsFromMemberID(clientID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.memberships[clientID])
}

// GetClientIDFromSocket returns the client registered with socket.
func (r *Registry) GetClientIDFromSocket(socket Socket) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clientID, ok := r.sockets[socket.ID()]
	if !ok {
		return "", ErrSocketNotFound
	}
	return clientID, nil
}

// GetSocketFromClientID returns the current socket of clientID.
func (r *Registry) GetSocketFromClientID(clientID string) (Socket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	socket, ok := r.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	return socket, nil
}

// ConnectionCount returns the number of registered clients.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func sortedKeys(s set) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
