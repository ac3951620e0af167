package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/goevery/broadcastsync/internal/auth"
	"github.com/goevery/broadcastsync/internal/broadcaster"
	"github.com/goevery/broadcastsync/internal/ierr"
)

type PushRequest struct {
	ChannelId string          `json:"channelId"`
	Payload   json.RawMessage `json:"payload"`
}

type PushHandlerInterface interface {
	Handle(ctx context.Context, req PushRequest) (broadcaster.Message, error)
}

type PushHandler struct {
	channelIdValidator *ChannelIdValidator
	registry           broadcaster.Registry
}

func NewPushHandler(
	channelIdValidator *ChannelIdValidator,
	registry broadcaster.Registry,
) *PushHandler {
	return &PushHandler{
		channelIdValidator,
		registry,
	}
}

// Handle publishes from the caller's own instance when its connection has
// joined the channel, so the caller does not receive its own message. Other
// callers publish from a short-lived instance.
func (h *PushHandler) Handle(ctx context.Context, req PushRequest) (broadcaster.Message, error) {
	var authentication *auth.Authentication

	connection, hasConnection := broadcaster.ConnectionFromContext(ctx)
	if hasConnection {
		authentication = connection.GetAuthentication()
	}

	if authentication == nil {
		var ok bool
		authentication, ok = auth.AuthenticationFromContext(ctx)
		if !ok {
			return broadcaster.Message{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user not authenticated"))
		}
	}

	if !authentication.IsPublisher() {
		return broadcaster.Message{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to publish messages"))
	}

	if !authentication.IsAuthorized(req.ChannelId) {
		return broadcaster.Message{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to publish to this channel"))
	}

	err := h.channelIdValidator.Validate(req.ChannelId)
	if err != nil {
		return broadcaster.Message{}, err
	}

	if hasConnection {
		if channel, ok := connection.Channel(req.ChannelId); ok {
			return channel.Publish(req.Payload)
		}
	}

	channel, err := h.registry.Open(req.ChannelId)
	if err != nil {
		return broadcaster.Message{}, err
	}
	defer channel.Close()

	return channel.Publish(req.Payload)
}
