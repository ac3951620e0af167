package handler

import (
	"context"
	"time"

	"github.com/goevery/broadcastsync/internal/broadcaster"
)

type HeartbeatResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Joined    []string  `json:"joined"`
}

type HeartbeatHandlerInterface interface {
	Handle(ctx context.Context) HeartbeatResponse
}

// HeartbeatHandler answers keepalives with the server time and the channels
// the connection has joined, so clients can detect a lost membership.
type HeartbeatHandler struct{}

func NewHeartbeatHandler() *HeartbeatHandler {
	return &HeartbeatHandler{}
}

func (h *HeartbeatHandler) Handle(ctx context.Context) HeartbeatResponse {
	joined := []string{}
	if connection, ok := broadcaster.ConnectionFromContext(ctx); ok {
		joined = connection.Joined()
	}

	return HeartbeatResponse{
		Timestamp: time.Now(),
		Joined:    joined,
	}
}
