package broadcaster

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/goevery/broadcastsync/internal/ierr"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

type Listener func(message Message)

// Channel is one open instance of a named broadcast channel. It is owned by
// whoever opened it and only the owner should close it.
//
// Listeners run on the instance's delivery goroutine, one message at a time,
// in the order messages were enqueued.
type Channel struct {
	id     string
	name   string
	hub    *Hub
	logger *zap.Logger
	inbox  *mailbox
	done   chan struct{}

	mu            sync.Mutex
	closed        bool
	subscriptions []*Subscription
}

func newChannel(hub *Hub, name string) *Channel {
	id := uuid.NewString()

	return &Channel{
		id:     id,
		name:   name,
		hub:    hub,
		logger: hub.logger.With(zap.String("channel", name), zap.String("instanceId", id)),
		inbox:  newMailbox(),
		done:   make(chan struct{}),
	}
}

func (c *Channel) Id() string {
	return c.id
}

func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Publish sends payload to every other open instance with the same name. An
// empty payload is sent as null. Publishing on a closed instance returns
// ErrChannelClosed.
func (c *Channel) Publish(payload json.RawMessage) (Message, error) {
	if c.Closed() {
		return Message{}, channelClosed()
	}

	if len(payload) == 0 {
		payload = nullPayload
	}

	if !json.Valid(payload) {
		return Message{}, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("payload is not valid json"))
	}

	message := Message{
		Id:         gonanoid.Must(),
		Seq:        c.hub.nextSeq(),
		CreateTime: time.Now(),
		Channel:    c.name,
		Payload:    payload,
	}

	delivered := c.hub.broadcast(c, message)

	c.logger.Debug("message published",
		zap.String("messageId", message.Id),
		zap.Int("recipients", delivered))

	return message, nil
}

func (c *Channel) Subscribe(listener Listener) (*Subscription, error) {
	if listener == nil {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("listener cannot be nil"))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, channelClosed()
	}

	subscription := &Subscription{
		channel:  c,
		listener: listener,
	}
	c.subscriptions = append(c.subscriptions, subscription)

	return subscription, nil
}

// Close stops delivery and releases the instance from its group. Messages
// still queued are dropped. Calling Close more than once is a no-op.
func (c *Channel) Close() {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return
	}

	c.closed = true
	c.subscriptions = nil
	close(c.done)

	c.mu.Unlock()

	c.hub.leave(c)

	c.logger.Debug("channel closed")
}

func (c *Channel) unsubscribe(subscription *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscriptions = slices.DeleteFunc(c.subscriptions, func(s *Subscription) bool {
		return s == subscription
	})
}

func (c *Channel) listeners() ([]Listener, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false
	}

	listeners := make([]Listener, len(c.subscriptions))
	for i, subscription := range c.subscriptions {
		listeners[i] = subscription.listener
	}

	return listeners, true
}

func (c *Channel) deliver() {
	for {
		select {
		case <-c.done:
			return
		case <-c.inbox.ready():
		}

		for {
			message, ok := c.inbox.pop()
			if !ok {
				break
			}

			listeners, open := c.listeners()
			if !open {
				return
			}

			for _, listener := range listeners {
				listener(message)
			}
		}
	}
}

type Subscription struct {
	channel  *Channel
	listener Listener
	once     sync.Once
}

// Cancel detaches the listener. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.channel.unsubscribe(s)
	})
}
