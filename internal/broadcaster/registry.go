package broadcaster

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/goevery/broadcastsync/internal/ierr"
	"go.uber.org/zap"
)

// Registry opens channel instances. Instances opened with the same name form
// a group and receive each other's messages.
type Registry interface {
	Open(name string) (*Channel, error)
	Groups() []Group
}

type Group struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Hub is the in-memory Registry. A group exists while at least one of its
// channel instances is open.
type Hub struct {
	logger *zap.Logger
	mu     sync.RWMutex
	seq    atomic.Uint64

	shutdown bool
	groups   map[string]map[string]*Channel
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		logger: logger,
		groups: make(map[string]map[string]*Channel),
	}
}

func (h *Hub) Open(name string) (*Channel, error) {
	if h == nil {
		return nil, channelUnavailable()
	}

	if strings.TrimSpace(name) == "" {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("channel name cannot be empty"))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.shutdown {
		return nil, channelUnavailable()
	}

	members, ok := h.groups[name]
	if !ok {
		members = make(map[string]*Channel)
		h.groups[name] = members

		h.logger.Debug("channel group created", zap.String("channel", name))
	}

	channel := newChannel(h, name)
	members[channel.id] = channel

	go channel.deliver()

	return channel, nil
}

func (h *Hub) Groups() []Group {
	h.mu.RLock()
	defer h.mu.RUnlock()

	groups := make([]Group, 0, len(h.groups))
	for name, members := range h.groups {
		groups = append(groups, Group{
			Name:    name,
			Members: len(members),
		})
	}

	slices.SortFunc(groups, func(a, b Group) int {
		return strings.Compare(a.Name, b.Name)
	})

	return groups
}

// Members returns the number of open channel instances named name.
func (h *Hub) Members(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.groups[name])
}

// Shutdown closes every open channel instance. Open fails afterwards.
func (h *Hub) Shutdown() {
	h.mu.Lock()

	if h.shutdown {
		h.mu.Unlock()

		return
	}

	h.shutdown = true

	var channels []*Channel
	for _, members := range h.groups {
		for _, channel := range members {
			channels = append(channels, channel)
		}
	}

	h.mu.Unlock()

	for _, channel := range channels {
		channel.Close()
	}

	h.logger.Info("hub shut down", zap.Int("closedChannels", len(channels)))
}

func (h *Hub) nextSeq() uint64 {
	return h.seq.Add(1)
}

// broadcast enqueues message into the mailbox of every member of the sender's
// group except the sender itself.
func (h *Hub) broadcast(sender *Channel, message Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, member := range h.groups[sender.name] {
		if id == sender.id {
			continue
		}

		member.inbox.push(message.clone())
		delivered++
	}

	return delivered
}

func (h *Hub) leave(channel *Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[channel.name]
	if !ok {
		return
	}

	delete(members, channel.id)
	if len(members) == 0 {
		delete(h.groups, channel.name)

		h.logger.Debug("channel group released", zap.String("channel", channel.name))
	}
}
