package handler

import (
	"context"
	"errors"

	"github.com/goevery/broadcastsync/internal/broadcaster"
)

type LeaveRequest struct {
	ChannelId string `json:"channelId"`
}

type LeaveResponse struct {
	Success bool `json:"success"`
}

type LeaveHandlerInterface interface {
	Handle(ctx context.Context, req LeaveRequest) (LeaveResponse, error)
}

type LeaveHandler struct {
	channelIdValidator *ChannelIdValidator
}

func NewLeaveHandler(channelIdValidator *ChannelIdValidator) *LeaveHandler {
	return &LeaveHandler{
		channelIdValidator,
	}
}

func (h *LeaveHandler) Handle(ctx context.Context, req LeaveRequest) (LeaveResponse, error) {
	err := h.channelIdValidator.Validate(req.ChannelId)
	if err != nil {
		return LeaveResponse{}, err
	}

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return LeaveResponse{}, errors.New("connection not found in context")
	}

	return LeaveResponse{
		Success: connection.Leave(req.ChannelId),
	}, nil
}
