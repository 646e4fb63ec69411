package broadcast

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// DefaultBufferSize is the per-subscriber inbox size used when none is given.
const DefaultBufferSize = 64

var (
	ErrHubClosed         = errors.New("broadcast hub closed")
	ErrAlreadySubscribed = errors.New("participant already subscribed")
)

// Receiver consumes messages published by other participants.
type Receiver interface {
	Receive(Message)
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(Message)

// Receive calls f(msg).
func (f ReceiverFunc) Receive(msg Message) { f(msg) }

type subscriber struct {
	id       string
	receiver Receiver
	inbox    chan Message
	done     chan struct{}
}

// Hub fans messages out to every subscriber except the publisher.
//
// Delivery is at-most-once and unacknowledged. A subscriber whose inbox is
// full misses the message; Publish never blocks on a slow receiver. Each
// subscriber's messages are handed to its Receiver one at a time from a
// dedicated goroutine, in the order they entered its inbox.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	bufferSize  int
	closed      bool
	logger      *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[string]*subscriber),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers a receiver under the participant ID.
func (h *Hub) Subscribe(participantID string, receiver Receiver) error {
	if receiver == nil {
		return errors.New("receiver is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if _, exists := h.subscribers[participantID]; exists {
		return ErrAlreadySubscribed
	}
	sub := &subscriber{
		id:       participantID,
		receiver: receiver,
		inbox:    make(chan Message, h.bufferSize),
		done:     make(chan struct{}),
	}
	h.subscribers[participantID] = sub
	go sub.run()

	h.logger.Debug("subscriber registered", zap.String("participant_id", participantID))
	return nil
}

// Unsubscribe removes a participant. Messages still queued for it are delivered
// before its goroutine exits.
func (h *Hub) Unsubscribe(participantID string) {
	h.mu.Lock()
	sub, ok := h.subscribers[participantID]
	if ok {
		delete(h.subscribers, participantID)
		close(sub.inbox)
	}
	h.mu.Unlock()

	if ok {
		<-sub.done
		h.logger.Debug("subscriber unregistered", zap.String("participant_id", participantID))
	}
}

// Publish offers msg to every subscriber other than msg.Origin and returns
// how many inboxes accepted it.
func (h *Hub) Publish(ctx context.Context, msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}

	delivered := 0
	for id, sub := range h.subscribers {
		if id == msg.Origin {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		select {
		case sub.inbox <- msg:
			delivered++
		default:
			h.logger.Debug("dropping broadcast for slow subscriber",
				zap.String("participant_id", id),
				zap.String("message_type", string(msg.Type)),
				zap.String("message_id", msg.ID),
			)
		}
	}
	return delivered
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close unsubscribes everyone and rejects further subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subscribers))
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		close(sub.inbox)
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
}

func (s *subscriber) run() {
	defer close(s.done)
	for msg := range s.inbox {
		s.receiver.Receive(msg)
	}
}
