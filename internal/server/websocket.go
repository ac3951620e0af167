package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/goevery/broadcastsync/internal/broadcaster"
	"github.com/goevery/broadcastsync/internal/handler"
	"github.com/goevery/broadcastsync/internal/ierr"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

type WebSocketOptions struct {
	SendBuffer int
	ReadLimit  int64
	PushRate   rate.Limit
	PushBurst  int
}

func DefaultWebSocketOptions() WebSocketOptions {
	return WebSocketOptions{
		SendBuffer: 256,
		ReadLimit:  64 * 1024,
		PushRate:   50,
		PushBurst:  100,
	}
}

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader
	router   *Router
	options  WebSocketOptions
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	router *Router,
	options WebSocketOptions,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		router,
		options,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/websocket", s.handle)
}

func (s *WebSocketServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connection := broadcaster.NewConnection(s.logger, s.options.SendBuffer)
	logger := s.logger.With(
		zap.String("connectionId", connection.Id),
		zap.String("remoteAddr", r.RemoteAddr))

	logger.Info("websocket connection established")

	conn.SetReadLimit(s.options.ReadLimit)

	ctx, cancel := context.WithCancel(broadcaster.WithConnection(context.Background(), connection))
	responses := make(chan handler.Response, 16)
	writerDone := make(chan struct{})

	go s.writeLoop(ctx, logger, conn, connection, responses, writerDone)

	s.readLoop(ctx, logger, conn, responses)

	cancel()
	<-writerDone
	connection.Disconnect()

	logger.Info("websocket connection closed")
}

func (s *WebSocketServer) readLoop(
	ctx context.Context,
	logger *zap.Logger,
	conn *websocket.Conn,
	responses chan<- handler.Response,
) {
	limiter := rate.NewLimiter(s.options.PushRate, s.options.PushBurst)

	for {
		var request handler.Request
		err := conn.ReadJSON(&request)
		if err != nil {
			s.handleReadError(logger, conn, err)
			return
		}

		var response *handler.Response
		if request.Method == "push" && !limiter.Allow() {
			if request.ReplyExpected() {
				reply := request.ReplyWithError(
					ierr.New(ierr.ErrorCodeResourceExhausted, errors.New("push rate exceeded")),
				)
				response = &reply
			}
		} else {
			response = s.router.RouteRequest(ctx, request)
		}

		if response == nil {
			continue
		}

		select {
		case responses <- *response:
		case <-ctx.Done():
			return
		}
	}
}

func (s *WebSocketServer) handleReadError(logger *zap.Logger, conn *websocket.Conn, err error) {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		logger.Warn("invalid request, closing connection", zap.Error(err))

		closeMessage := websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, "invalid request")
		_ = conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait))

		return
	}

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Warn("websocket read failed", zap.Error(err))
	}
}

// writeLoop is the only writer of data frames on conn. It closes conn when it
// exits, which unblocks the read loop.
func (s *WebSocketServer) writeLoop(
	ctx context.Context,
	logger *zap.Logger,
	conn *websocket.Conn,
	connection *broadcaster.Connection,
	responses <-chan handler.Response,
	done chan<- struct{},
) {
	defer func() {
		conn.Close()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case response := <-responses:
			err := s.write(conn, response)
			if err != nil {
				logger.Warn("failed to write response", zap.Error(err))
				return
			}
		case message, ok := <-connection.Send:
			if !ok {
				closeMessage := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "connection too slow")
				_ = conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait))

				return
			}

			err := s.writeMessage(conn, message)
			if err != nil {
				logger.Warn("failed to write broadcast", zap.Error(err))
				return
			}
		}
	}
}

func (s *WebSocketServer) writeMessage(conn *websocket.Conn, message broadcaster.Message) error {
	notification, err := handler.NewBroadcastNotification(message)
	if err != nil {
		return err
	}

	return s.write(conn, notification)
}

func (s *WebSocketServer) write(conn *websocket.Conn, v any) error {
	err := conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err != nil {
		return err
	}

	return conn.WriteJSON(v)
}
