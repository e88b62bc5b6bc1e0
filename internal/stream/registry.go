package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/observability/metrics"
	"github.com/stellar-insights/ledger-stream-service/internal/stream/protocol"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
	"github.com/stellar-insights/ledger-stream-service/internal/utils"
)

const commandBufferSize = 256

var (
	ErrRegistryClosed       = errors.New("channel registry is closed")
	ErrIngressClosed        = errors.New("channel registry no longer accepts connections")
	ErrUnknownConnection    = errors.New("unknown connection")
	ErrTooManySubscriptions = errors.New("too many subscriptions")
)

type Stats struct {
	Connections   int `json:"connections"`
	Topics        int `json:"topics"`
	Subscriptions int `json:"subscriptions"`
}

// registryState is only ever touched by the registry goroutine.
type registryState struct {
	connections   map[string]*Connection
	topics        map[string]map[string]*Connection
	subscriptions map[string]map[string]struct{}
}

// Registry maps topics to the connections subscribed to them. All state is
// owned by a single goroutine; every operation is a command sent to it, so
// commands are applied in the order they are issued.
type Registry struct {
	commands  chan func(*registryState)
	stopped   chan struct{}
	stopOnce  sync.Once
	maxTopics int

	ingressClosed atomic.Bool
}

func NewRegistry(maxTopicsPerConnection int) *Registry {
	r := &Registry{
		commands:  make(chan func(*registryState), commandBufferSize),
		stopped:   make(chan struct{}),
		maxTopics: maxTopicsPerConnection,
	}
	state := &registryState{
		connections:   make(map[string]*Connection),
		topics:        make(map[string]map[string]*Connection),
		subscriptions: make(map[string]map[string]struct{}),
	}
	go r.run(state)
	return r
}

func (r *Registry) run(state *registryState) {
	for {
		select {
		case cmd := <-r.commands:
			cmd(state)
		case <-r.stopped:
			return
		}
	}
}

// do hands cmd to the registry goroutine without waiting for it to run.
func (r *Registry) do(cmd func(*registryState)) error {
	select {
	case <-r.stopped:
		return ErrRegistryClosed
	default:
	}
	select {
	case r.commands <- cmd:
		return nil
	case <-r.stopped:
		return ErrRegistryClosed
	}
}

// call runs cmd on the registry goroutine and waits for its result.
func call[T any](r *Registry, cmd func(*registryState) T) (T, error) {
	reply := make(chan T, 1)
	var zero T
	if err := r.do(func(s *registryState) { reply <- cmd(s) }); err != nil {
		return zero, err
	}
	select {
	case result := <-reply:
		return result, nil
	case <-r.stopped:
		return zero, ErrRegistryClosed
	}
}

// Register adds a connection and greets it with its id.
func (r *Registry) Register(conn *Connection) error {
	if r.ingressClosed.Load() {
		return ErrIngressClosed
	}
	err, callErr := call(r, func(s *registryState) error {
		// ingress may have closed while the command was queued
		if r.ingressClosed.Load() {
			return ErrIngressClosed
		}
		s.connections[conn.id] = conn
		s.subscriptions[conn.id] = make(map[string]struct{})
		metrics.SetLiveConnections(len(s.connections))
		s.send(conn, protocol.NewConnected(conn.id))
		return nil
	})
	return errors.Join(callErr, err)
}

// Subscribe adds topics to a connection and enqueues a subscription_confirm
// listing them. Any later publish to those topics is queued after the confirm.
func (r *Registry) Subscribe(connID string, topics []string) error {
	topics = utils.Dedupe(topics)
	for _, topic := range topics {
		if err := protocol.ValidateTopic(topic); err != nil {
			return err
		}
	}
	err, callErr := call(r, func(s *registryState) error {
		conn, ok := s.connections[connID]
		if !ok {
			return ErrUnknownConnection
		}
		subs := s.subscriptions[connID]
		added := 0
		for _, topic := range topics {
			if _, ok := subs[topic]; !ok {
				added++
			}
		}
		if len(subs)+added > r.maxTopics {
			return fmt.Errorf("%w: at most %d channels per connection", ErrTooManySubscriptions, r.maxTopics)
		}
		for _, topic := range topics {
			subs[topic] = struct{}{}
			if s.topics[topic] == nil {
				s.topics[topic] = make(map[string]*Connection)
			}
			s.topics[topic][connID] = conn
		}
		s.send(conn, protocol.NewSubscriptionConfirm(topics, protocol.StatusSubscribed))
		return nil
	})
	return errors.Join(callErr, err)
}

func (r *Registry) Unsubscribe(connID string, topics []string) error {
	topics = utils.Dedupe(topics)
	err, callErr := call(r, func(s *registryState) error {
		conn, ok := s.connections[connID]
		if !ok {
			return ErrUnknownConnection
		}
		for _, topic := range topics {
			s.unsubscribe(connID, topic)
		}
		s.send(conn, protocol.NewSubscriptionConfirm(topics, protocol.StatusUnsubscribed))
		return nil
	})
	return errors.Join(callErr, err)
}

// Publish enqueues msg to every connection subscribed to topic. It never
// waits for a connection: a connection whose queue is full is closed.
func (r *Registry) Publish(topic string, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	messageType := string(msg.MessageType())
	return r.do(func(s *registryState) {
		for _, conn := range s.topics[topic] {
			if !conn.enqueue(data) {
				s.evict(conn, ReasonSlow)
				continue
			}
			metrics.RecordPublishedMessage(messageType)
		}
	})
}

// Send enqueues msg to a single connection.
func (r *Registry) Send(connID string, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return r.do(func(s *registryState) {
		if conn, ok := s.connections[connID]; ok && !conn.enqueue(data) {
			s.evict(conn, ReasonSlow)
		}
	})
}

// Drop removes a connection and its subscriptions.
func (r *Registry) Drop(connID string) error {
	return r.do(func(s *registryState) {
		if conn, ok := s.connections[connID]; ok {
			s.remove(conn)
			conn.Close(ReasonClientGone)
		}
	})
}

// Evict removes a connection the server decided to close.
func (r *Registry) Evict(connID string, reason CloseReason) error {
	return r.do(func(s *registryState) {
		if conn, ok := s.connections[connID]; ok {
			s.evict(conn, reason)
		}
	})
}

// CloseIngress makes Register fail from now on.
func (r *Registry) CloseIngress() {
	r.ingressClosed.Store(true)
}

func (r *Registry) IngressClosed() bool {
	return r.ingressClosed.Load()
}

func (r *Registry) Stats() (Stats, error) {
	return call(r, func(s *registryState) Stats {
		stats := Stats{Connections: len(s.connections), Topics: len(s.topics)}
		for _, subs := range s.subscriptions {
			stats.Subscriptions += len(subs)
		}
		return stats
	})
}

// Shutdown notifies every connection that the server is going away, waits
// grace for clients to observe it, closes all connections and stops the
// registry. It returns a ShutdownPhaseTimeout error when connections are
// still open once ctx is done.
func (r *Registry) Shutdown(ctx context.Context, grace time.Duration) error {
	r.CloseIngress()
	logger := log.Ctx(ctx)

	notified, err := call(r, func(s *registryState) int {
		for _, conn := range s.connections {
			s.send(conn, protocol.NewServerShutdown("server is shutting down"))
		}
		return len(s.connections)
	})
	if err != nil {
		return err
	}
	logger.Info().Int("connections", notified).Dur("grace", grace).Msg("notified connections of shutdown")

	if waitErr := utils.SleepContext(ctx, grace); waitErr != nil {
		logger.Warn().Msg("shutdown grace period cut short")
	}

	conns, err := call(r, func(s *registryState) []*Connection {
		conns := make([]*Connection, 0, len(s.connections))
		for _, conn := range s.connections {
			conns = append(conns, conn)
			s.remove(conn)
			conn.Close(ReasonShutdown)
		}
		return conns
	})
	r.stopOnce.Do(func() { close(r.stopped) })
	if err != nil {
		return err
	}

	remaining := 0
	for _, conn := range conns {
		select {
		case <-conn.Closed():
			continue
		default:
		}
		select {
		case <-conn.Closed():
		case <-ctx.Done():
			remaining++
		}
	}
	if remaining > 0 {
		return types.NewKindError(types.ShutdownPhaseTimeout,
			fmt.Errorf("%d of %d connections did not close in time", remaining, len(conns)))
	}
	return nil
}

func (s *registryState) send(conn *Connection, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.MessageType())).Msg("failed to encode message")
		return
	}
	if !conn.enqueue(data) {
		s.evict(conn, ReasonSlow)
	}
}

func (s *registryState) unsubscribe(connID, topic string) {
	delete(s.subscriptions[connID], topic)
	if subscribers, ok := s.topics[topic]; ok {
		delete(subscribers, connID)
		if len(subscribers) == 0 {
			delete(s.topics, topic)
		}
	}
}

func (s *registryState) remove(conn *Connection) {
	for topic := range s.subscriptions[conn.id] {
		s.unsubscribe(conn.id, topic)
	}
	delete(s.subscriptions, conn.id)
	delete(s.connections, conn.id)
	metrics.SetLiveConnections(len(s.connections))
}

func (s *registryState) evict(conn *Connection, reason CloseReason) {
	if _, ok := s.connections[conn.id]; !ok {
		return
	}
	s.remove(conn)
	conn.Close(reason)
	metrics.RecordEvictedSubscriber(reason.String())
	kind := types.SubscriberSlow
	if reason != ReasonSlow {
		kind = types.SubscriberDisconnected
	}
	log.Warn().Str("connectionId", conn.id).Str("kind", kind.String()).
		Str("reason", reason.String()).Msg("evicted connection")
}
