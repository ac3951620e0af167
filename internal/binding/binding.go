// Package binding owns a single open broadcast channel instance and its one
// listener, decoding inbound payloads into T.
//
// Values travel as JSON, so T must survive a round trip through
// encoding/json: unexported fields are dropped and values held in interfaces
// come back as their JSON types (a number in an any is a float64).
package binding

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"

	"github.com/goevery/broadcastsync/internal/broadcaster"
	"github.com/goevery/broadcastsync/internal/ierr"
	"go.uber.org/zap"
)

type Opener interface {
	Open(name string) (*broadcaster.Channel, error)
}

type Option func(*options)

type options struct {
	logger *zap.Logger
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

var nullPayload = []byte("null")

// Encode returns the wire form of value. A nil value encodes as null.
func Encode[T any](value *T) (json.RawMessage, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	return payload, nil
}

// Decode reads a fresh value from payload. null decodes to nil.
func Decode[T any](payload json.RawMessage) (*T, error) {
	if len(payload) == 0 || bytes.Equal(bytes.TrimSpace(payload), nullPayload) {
		return nil, nil
	}

	value := new(T)
	err := json.Unmarshal(payload, value)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	return value, nil
}

type Binding[T any] struct {
	opener    Opener
	onMessage func(value *T)
	logger    *zap.Logger

	mu           sync.Mutex
	closed       bool
	channel      *broadcaster.Channel
	subscription *broadcaster.Subscription
}

// New opens the named channel. onMessage receives the values other bindings
// publish on that name, nil being an explicit null. A nil onMessage ignores
// inbound messages.
func New[T any](opener Opener, name string, onMessage func(value *T), opts ...Option) (*Binding[T], error) {
	o := options{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if opener == nil {
		return nil, ierr.New(ierr.ErrorCodeChannelUnavailable, broadcaster.ErrChannelUnavailable)
	}

	if onMessage == nil {
		onMessage = func(*T) {}
	}

	b := &Binding[T]{
		opener:    opener,
		onMessage: onMessage,
		logger:    o.logger,
	}

	err := b.attach(name)
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Binding[T]) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.channel == nil {
		return ""
	}

	return b.channel.Name()
}

// Publish sends value to every other binding on the same channel name. A nil
// value is sent as null.
func (b *Binding[T]) Publish(value *T) error {
	payload, err := Encode(value)
	if err != nil {
		return err
	}

	return b.PublishPayload(payload)
}

// PublishPayload sends an already encoded value.
func (b *Binding[T]) PublishPayload(payload json.RawMessage) error {
	b.mu.Lock()
	channel := b.channel
	closed := b.closed
	b.mu.Unlock()

	if closed || channel == nil {
		return ierr.New(ierr.ErrorCodeChannelClosed, broadcaster.ErrChannelClosed)
	}

	_, err := channel.Publish(payload)

	return err
}

// Rebind moves the binding to another channel name. The old instance is
// released before the new one is opened. Rebinding to the current name is a
// no-op.
func (b *Binding[T]) Rebind(name string) error {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()

		return ierr.New(ierr.ErrorCodeChannelClosed, broadcaster.ErrChannelClosed)
	}

	if b.channel != nil && b.channel.Name() == name {
		b.mu.Unlock()

		return nil
	}

	b.detachLocked()
	b.mu.Unlock()

	return b.attach(name)
}

// Close releases the channel. Calling it more than once is a no-op.
func (b *Binding[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	b.detachLocked()
}

func (b *Binding[T]) attach(name string) error {
	channel, err := b.opener.Open(name)
	if err != nil {
		if _, ok := ierr.CodeOf(err); !ok {
			return ierr.New(ierr.ErrorCodeChannelUnavailable, errors.Join(broadcaster.ErrChannelUnavailable, err))
		}

		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		channel.Close()

		return ierr.New(ierr.ErrorCodeChannelClosed, broadcaster.ErrChannelClosed)
	}

	subscription, err := channel.Subscribe(func(message broadcaster.Message) {
		b.receive(channel, message)
	})
	if err != nil {
		channel.Close()

		return err
	}

	// A concurrent Rebind may have attached first; only the last one stays.
	b.detachLocked()

	b.channel = channel
	b.subscription = subscription

	b.logger.Debug("channel bound", zap.String("channel", name))

	return nil
}

func (b *Binding[T]) detachLocked() {
	if b.channel == nil {
		return
	}

	name := b.channel.Name()

	b.subscription.Cancel()
	b.channel.Close()
	b.channel = nil
	b.subscription = nil

	b.logger.Debug("channel unbound", zap.String("channel", name))
}

func (b *Binding[T]) receive(channel *broadcaster.Channel, message broadcaster.Message) {
	// Drop stragglers from an instance that was replaced by Rebind.
	b.mu.Lock()
	current := b.channel == channel && !b.closed
	b.mu.Unlock()

	if !current {
		return
	}

	value, err := Decode[T](message.Payload)
	if err != nil {
		b.logger.Warn("dropping undecodable message",
			zap.String("channel", message.Channel),
			zap.String("messageId", message.Id),
			zap.Error(err))

		return
	}

	b.onMessage(value)
}
