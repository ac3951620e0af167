// Package state keeps a value synchronized across every State bound to the
// same channel name.
//
// A State starts Uninitialized. Send and inbound messages both move it to
// HasValue and replace the value; the sender sees its own value immediately,
// before any delivery. Moving to another channel name resets it to
// Uninitialized. An explicit null is a value, distinct from Uninitialized.
//
// The sender keeps the value its peers decode, not the one it passed in, so
// every State on a channel reads the same thing. T must survive a round trip
// through encoding/json.
package state

import (
	"encoding/json"
	"sync"

	"github.com/goevery/broadcastsync/internal/binding"
	"github.com/goevery/broadcastsync/internal/broadcaster"
	"github.com/goevery/broadcastsync/internal/ierr"
	"go.uber.org/zap"
)

type Snapshot[T any] struct {
	Value    *T
	HasValue bool

	generation uint64
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

type State[T any] struct {
	opener binding.Opener
	logger *zap.Logger
	cell   *Cell[Snapshot[T]]

	mu         sync.Mutex
	closed     bool
	generation uint64
	binding    *binding.Binding[T]
}

func New[T any](opener binding.Opener, name string, opts ...Option) (*State[T], error) {
	o := options{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	s := &State[T]{
		opener: opener,
		logger: o.logger,
		cell:   NewCell(Snapshot[T]{}),
	}

	b, err := s.bind(name, 0)
	if err != nil {
		return nil, err
	}
	s.binding = b

	return s, nil
}

// Get returns a deep copy of the current value and whether any value has been
// sent or received. (nil, true) is an explicit null.
func (s *State[T]) Get() (*T, bool) {
	snapshot := s.cell.Get()

	return clone(snapshot.Value), snapshot.HasValue
}

// Name returns the channel name the state is bound to.
func (s *State[T]) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.binding == nil {
		return ""
	}

	return s.binding.Name()
}

// Send stores value locally and publishes it.
func (s *State[T]) Send(value T) error {
	return s.send(&value)
}

// Clear stores and publishes an explicit null.
func (s *State[T]) Clear() error {
	return s.send(nil)
}

// Watch calls fn after every change of the value. fn runs on the goroutine
// that caused the change.
func (s *State[T]) Watch(fn func(value *T, ok bool)) (cancel func()) {
	return s.cell.Watch(func(snapshot Snapshot[T]) {
		fn(clone(snapshot.Value), snapshot.HasValue)
	})
}

// SetChannel moves the state to another channel name. The old channel is
// closed before the new one is opened and the value is reset to
// Uninitialized. Setting the current name is a no-op.
func (s *State[T]) SetChannel(name string) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return ierr.New(ierr.ErrorCodeChannelClosed, broadcaster.ErrChannelClosed)
	}

	if s.binding != nil && s.binding.Name() == name {
		s.mu.Unlock()

		return nil
	}

	if s.binding != nil {
		s.binding.Close()
		s.binding = nil
	}

	s.generation++
	generation := s.generation

	s.mu.Unlock()

	// Reset before binding so that nothing from the new channel is lost and
	// nothing from the old one is kept.
	s.cell.Update(func(current Snapshot[T]) (Snapshot[T], bool) {
		if current.generation > generation {
			return current, false
		}

		return Snapshot[T]{generation: generation}, true
	})

	b, err := s.bind(name, generation)
	if err != nil {
		s.logger.Warn("failed to rebind state", zap.String("channel", name), zap.Error(err))

		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.generation != generation {
		b.Close()

		return nil
	}

	s.binding = b

	s.logger.Debug("state moved to channel", zap.String("channel", name))

	return nil
}

// Close releases the channel. The last value stays readable.
func (s *State[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true

	if s.binding != nil {
		s.binding.Close()
	}
}

func (s *State[T]) bind(name string, generation uint64) (*binding.Binding[T], error) {
	return binding.New(s.opener, name, func(value *T) {
		s.receive(generation, value)
	}, binding.WithLogger(s.logger))
}

func (s *State[T]) receive(generation uint64, value *T) {
	s.cell.Update(func(current Snapshot[T]) (Snapshot[T], bool) {
		if current.generation != generation {
			return current, false
		}

		return Snapshot[T]{
			Value:      value,
			HasValue:   true,
			generation: generation,
		}, true
	})
}

func (s *State[T]) send(value *T) error {
	s.mu.Lock()
	b := s.binding
	closed := s.closed
	generation := s.generation
	s.mu.Unlock()

	if closed || b == nil {
		return ierr.New(ierr.ErrorCodeChannelClosed, broadcaster.ErrChannelClosed)
	}

	payload, err := binding.Encode(value)
	if err != nil {
		return err
	}

	echo, err := binding.Decode[T](payload)
	if err != nil {
		return err
	}

	// SetChannel may have moved on since the binding was read.
	stored := s.cell.Update(func(current Snapshot[T]) (Snapshot[T], bool) {
		if current.generation != generation {
			return current, false
		}

		return Snapshot[T]{
			Value:      echo,
			HasValue:   true,
			generation: generation,
		}, true
	})
	if !stored {
		return ierr.New(ierr.ErrorCodeChannelClosed, broadcaster.ErrChannelClosed)
	}

	return b.PublishPayload(payload)
}

// clone deep-copies a value. Values in the cell already made the JSON round
// trip, so encoding them again is lossless.
func clone[T any](value *T) *T {
	if value == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err == nil {
		copied, err := binding.Decode[T](payload)
		if err == nil && copied != nil {
			return copied
		}
	}

	v := *value

	return &v
}
