package broadcaster

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/goevery/broadcastsync/internal/auth"
	"github.com/goevery/broadcastsync/internal/ierr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Connection is a bridge client. It owns one channel instance per joined
// channel name and receives their messages through Send.
type Connection struct {
	Id   string
	Send chan Message

	logger *zap.Logger

	mu             sync.RWMutex
	closed         bool
	authentication *auth.Authentication
	channels       map[string]*Channel
}

func NewConnection(logger *zap.Logger, sendBuffer int) *Connection {
	id := uuid.NewString()

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Connection{
		Id:       id,
		Send:     make(chan Message, sendBuffer),
		logger:   logger.With(zap.String("connectionId", id)),
		channels: make(map[string]*Channel),
	}
}

func (c *Connection) SetAuthentication(auth *auth.Authentication) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authentication = auth
}

func (c *Connection) GetAuthentication() *auth.Authentication {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.authentication
}

func (c *Connection) IsAuthorized(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.authentication == nil {
		return false
	}

	return c.authentication.IsAuthorized(channel)
}

// Join opens an instance of the named channel on registry and forwards its
// messages to Send.
func (c *Connection) Join(registry Registry, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return channelClosed()
	}

	if _, ok := c.channels[name]; ok {
		return ierr.New(ierr.ErrorCodeAlreadyExists, errors.New("connection already joined channel"))
	}

	channel, err := registry.Open(name)
	if err != nil {
		return err
	}

	_, err = channel.Subscribe(c.deliver)
	if err != nil {
		channel.Close()

		return err
	}

	c.channels[name] = channel

	return nil
}

// Leave closes the connection's instance of the named channel.
func (c *Connection) Leave(name string) bool {
	c.mu.Lock()

	channel, ok := c.channels[name]
	if ok {
		delete(c.channels, name)
	}

	c.mu.Unlock()

	if ok {
		channel.Close()
	}

	return ok
}

// Channel returns the connection's instance of the named channel, if joined.
func (c *Connection) Channel(name string) (*Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channel, ok := c.channels[name]

	return channel, ok
}

// Joined returns the joined channel names in order.
func (c *Connection) Joined() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	joined := make([]string, 0, len(c.channels))
	for name := range c.channels {
		joined = append(joined, name)
	}

	slices.Sort(joined)

	return joined
}

// Disconnect closes every joined channel and then Send.
func (c *Connection) Disconnect() {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return
	}

	c.closed = true
	channels := c.channels
	c.channels = nil
	close(c.Send)

	c.mu.Unlock()

	for _, channel := range channels {
		channel.Close()
	}
}

func (c *Connection) deliver(message Message) {
	c.mu.RLock()

	if c.closed {
		c.mu.RUnlock()

		return
	}

	select {
	case c.Send <- message:
		c.mu.RUnlock()

		return
	default:
	}

	c.mu.RUnlock()

	c.logger.Warn("connection send channel is full, closing connection",
		zap.String("channel", message.Channel))

	c.Disconnect()
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(connectionKey).(*Connection)

	return conn, ok
}
