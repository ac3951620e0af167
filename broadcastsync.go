// Package broadcastsync provides named broadcast channels within a process and
// state that stays synchronized over them.
//
// Every channel instance opened with the same name joins the same group and
// receives the messages the other members publish. A publisher never receives
// its own messages.
//
//	counter, err := broadcastsync.UseSynchronizedState[int]("counter")
//	if err != nil {
//		return err
//	}
//	defer counter.Close()
//
//	counter.Send(42) // counter.Get() now returns 42, other states follow
package broadcastsync

import (
	"sync"

	"github.com/goevery/broadcastsync/internal/binding"
	"github.com/goevery/broadcastsync/internal/broadcaster"
	"github.com/goevery/broadcastsync/internal/state"
)

type (
	Hub            = broadcaster.Hub
	Binding[T any] = binding.Binding[T]
	State[T any]   = state.State[T]
	Message        = broadcaster.Message
	ChannelGroup   = broadcaster.Group
	BindingOption  = binding.Option
	StateOption    = state.Option
)

var (
	ErrChannelUnavailable = broadcaster.ErrChannelUnavailable
	ErrChannelClosed      = broadcaster.ErrChannelClosed
)

var (
	defaultHubMu sync.RWMutex
	defaultHub   = broadcaster.NewHub(nil)
)

// DefaultHub returns the process-wide hub used by BindChannel and
// UseSynchronizedState.
func DefaultHub() *Hub {
	defaultHubMu.RLock()
	defer defaultHubMu.RUnlock()

	return defaultHub
}

// SetDefaultHub replaces the process-wide hub. Channels already open stay on
// the previous hub. A nil hub makes every channel unavailable.
func SetDefaultHub(hub *Hub) {
	defaultHubMu.Lock()
	defer defaultHubMu.Unlock()

	defaultHub = hub
}

// BindChannel opens the named channel on the default hub. onMessage receives
// every value other bindings publish on that name; nil means an explicit null.
func BindChannel[T any](name string, onMessage func(value *T), opts ...BindingOption) (*Binding[T], error) {
	return binding.New[T](DefaultHub(), name, onMessage, opts...)
}

// UseSynchronizedState binds a State to the named channel on the default hub.
func UseSynchronizedState[T any](name string, opts ...StateOption) (*State[T], error) {
	return state.New[T](DefaultHub(), name, opts...)
}
