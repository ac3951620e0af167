package handler

import (
	"context"
	"errors"

	"github.com/goevery/broadcastsync/internal/auth"
	"github.com/goevery/broadcastsync/internal/broadcaster"
	"github.com/goevery/broadcastsync/internal/ierr"
)

type ChannelsResponse struct {
	Channels []broadcaster.Group `json:"channels"`
}

type ChannelsHandlerInterface interface {
	Handle(ctx context.Context) (ChannelsResponse, error)
}

// ChannelsHandler lists the open channel groups visible to the caller.
type ChannelsHandler struct {
	registry broadcaster.Registry
}

func NewChannelsHandler(registry broadcaster.Registry) *ChannelsHandler {
	return &ChannelsHandler{
		registry,
	}
}

func (h *ChannelsHandler) Handle(ctx context.Context) (ChannelsResponse, error) {
	var authentication *auth.Authentication

	if connection, ok := broadcaster.ConnectionFromContext(ctx); ok {
		authentication = connection.GetAuthentication()
	}

	if authentication == nil {
		authentication, _ = auth.AuthenticationFromContext(ctx)
	}

	if authentication == nil {
		return ChannelsResponse{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user not authenticated"))
	}

	channels := []broadcaster.Group{}
	for _, group := range h.registry.Groups() {
		if authentication.IsAuthorized(group.Name) {
			channels = append(channels, group)
		}
	}

	return ChannelsResponse{
		Channels: channels,
	}, nil
}
