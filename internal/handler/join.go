package handler

import (
	"context"
	"errors"
	"time"

	"github.com/goevery/broadcastsync/internal/broadcaster"
	"github.com/goevery/broadcastsync/internal/ierr"
)

type JoinRequest struct {
	ChannelId string `json:"channelId"`
}

type JoinResponse struct {
	SubscriptionId string    `json:"subscriptionId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type JoinHandlerInterface interface {
	Handle(ctx context.Context, req JoinRequest) (JoinResponse, error)
}

type JoinHandler struct {
	channelIdValidator *ChannelIdValidator
	registry           broadcaster.Registry
}

func NewJoinHandler(
	channelIdValidator *ChannelIdValidator,
	registry broadcaster.Registry,
) *JoinHandler {
	return &JoinHandler{
		channelIdValidator,
		registry,
	}
}

func (h *JoinHandler) Handle(ctx context.Context, req JoinRequest) (JoinResponse, error) {
	err := h.channelIdValidator.Validate(req.ChannelId)
	if err != nil {
		return JoinResponse{}, err
	}

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return JoinResponse{}, errors.New("connection not found in context")
	}

	authentication := connection.GetAuthentication()
	if authentication == nil {
		return JoinResponse{},
			ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("authentication required"))
	}

	if !authentication.IsSubscriber() {
		return JoinResponse{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("subscribe scope required to join a channel"))
	}

	if !authentication.IsAuthorized(req.ChannelId) {
		return JoinResponse{},
			ierr.New(ierr.ErrorCodePermissionDenied, errors.New("user not authorized to access this channel"))
	}

	err = connection.Join(h.registry, req.ChannelId)
	if err != nil {
		return JoinResponse{}, err
	}

	channel, _ := connection.Channel(req.ChannelId)

	var subscriptionId string
	if channel != nil {
		subscriptionId = channel.Id()
	}

	return JoinResponse{
		SubscriptionId: subscriptionId,
		Timestamp:      time.Now(),
	}, nil
}
