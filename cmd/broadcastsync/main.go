package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/goevery/broadcastsync"
	"github.com/goevery/broadcastsync/internal/auth"
	"github.com/goevery/broadcastsync/internal/broadcaster"
	"github.com/goevery/broadcastsync/internal/handler"
	"github.com/goevery/broadcastsync/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	hub             *broadcaster.Hub
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
}

func NewApp(logger *zap.Logger, settings Settings) *App {
	originChecker := server.NewOriginChecker(settings.OriginList())
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	authenticator := auth.NewAuthenticator(settings.JWTSecret, settings.APIKeyList())

	// The bridge shares the process-wide hub so in-process bindings and
	// bridge clients see each other.
	hub := broadcaster.NewHub(logger.Named("hub"))
	broadcastsync.SetDefaultHub(hub)

	channelIdValidator := handler.NewChannelIdValidator()

	heartbeatHandler := handler.NewHeartbeatHandler()
	authHandler := handler.NewAuthHandler(authenticator)
	joinHandler := handler.NewJoinHandler(channelIdValidator, hub)
	leaveHandler := handler.NewLeaveHandler(channelIdValidator)
	pushHandler := handler.NewPushHandler(channelIdValidator, hub)
	channelsHandler := handler.NewChannelsHandler(hub)

	router := server.NewRouter(
		logger,
		heartbeatHandler,
		authHandler,
		joinHandler,
		leaveHandler,
		pushHandler,
		channelsHandler,
	)

	websocketOptions := server.DefaultWebSocketOptions()
	websocketOptions.SendBuffer = settings.SendBuffer
	websocketOptions.PushRate = rate.Limit(settings.PushRate)
	websocketOptions.PushBurst = settings.PushBurst

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		router,
		websocketOptions,
	)
	restServer := server.NewRESTServer(
		logger,
		pushHandler,
		channelsHandler,
		authenticator,
	)

	return &App{
		logger,
		settings,
		hub,
		websocketServer,
		restServer,
	}
}

func (a *App) setup(ctx context.Context) error {
	return a.startHttpServer(ctx)
}

func (a *App) startHttpServer(ctx context.Context) error {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	address := fmt.Sprintf("%s:%d", a.settings.Host, a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}

	a.logger.Info("starting http server",
		zap.String("address", address))

	serveErr := make(chan error, 1)

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-notifyCtx.Done():
	case err := <-serveErr:
		return fmt.Errorf("failed to start http server: %w", err)
	}

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)

	// Hijacked websocket connections are not tracked by Shutdown; closing the
	// hub releases their channels.
	a.hub.Shutdown()

	if err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	a.logger.Info("http server stopped")

	return nil
}

func main() {
	ctx := context.Background()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		log.Fatalf("failed to parse settings from environment: %v", err)
	}

	logger, err := buildZapLogger(settings.LogEncoding, settings.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	app := NewApp(logger, settings)

	err = app.setup(ctx)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}
}
