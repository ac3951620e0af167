package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goevery/broadcastsync/internal/auth"
	"github.com/goevery/broadcastsync/internal/broadcaster"
	"github.com/goevery/broadcastsync/internal/broadcaster/mocks"
	"github.com/goevery/broadcastsync/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func publisherContext(channels ...string) context.Context {
	return auth.WithAuthentication(context.Background(), &auth.Authentication{
		Subject:            "test-user",
		AuthorizedChannels: channels,
		Scope:              []string{auth.ScopePublish},
	})
}

func TestPushHandler_Handle(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	validator := NewChannelIdValidator()

	t.Run("publishes from a transient instance", func(t *testing.T) {
		hub := broadcaster.NewHub(logger)
		listener := broadcaster.NewConnection(logger, 8)
		require.NoError(t, listener.Join(hub, "test-channel"))

		pushHandler := NewPushHandler(validator, hub)

		message, err := pushHandler.Handle(publisherContext("test-channel"), PushRequest{
			ChannelId: "test-channel",
			Payload:   json.RawMessage(`{"foo":"bar"}`),
		})
		require.NoError(t, err)
		assert.Equal(t, "test-channel", message.Channel)

		select {
		case received := <-listener.Send:
			assert.Equal(t, message.Id, received.Id)
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}

		assert.Equal(t, 1, hub.Members("test-channel"))
	})

	t.Run("joined connection does not receive its own push", func(t *testing.T) {
		hub := broadcaster.NewHub(logger)
		connection := broadcaster.NewConnection(logger, 8)
		connection.SetAuthentication(&auth.Authentication{
			Subject:            "test-user",
			AuthorizedChannels: []string{"test-channel"},
			Scope:              []string{auth.ScopePublish, auth.ScopeSubscribe},
		})
		require.NoError(t, connection.Join(hub, "test-channel"))

		pushHandler := NewPushHandler(validator, hub)
		ctx := broadcaster.WithConnection(context.Background(), connection)

		_, err := pushHandler.Handle(ctx, PushRequest{ChannelId: "test-channel", Payload: json.RawMessage(`1`)})
		require.NoError(t, err)

		select {
		case <-connection.Send:
			t.Fatal("connection received its own push")
		case <-time.After(20 * time.Millisecond):
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		pushHandler := NewPushHandler(validator, mocks.NewMockRegistry(t))

		_, err := pushHandler.Handle(context.Background(), PushRequest{ChannelId: "test-channel"})

		code, _ := ierr.CodeOf(err)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, code)
	})

	t.Run("without publish scope", func(t *testing.T) {
		pushHandler := NewPushHandler(validator, mocks.NewMockRegistry(t))
		ctx := auth.WithAuthentication(context.Background(), &auth.Authentication{
			Subject:            "test-user",
			AuthorizedChannels: []string{"test-channel"},
			Scope:              []string{auth.ScopeSubscribe},
		})

		_, err := pushHandler.Handle(ctx, PushRequest{ChannelId: "test-channel"})

		code, _ := ierr.CodeOf(err)
		assert.Equal(t, ierr.ErrorCodePermissionDenied, code)
	})

	t.Run("unauthorized channel", func(t *testing.T) {
		pushHandler := NewPushHandler(validator, mocks.NewMockRegistry(t))

		_, err := pushHandler.Handle(publisherContext("another-channel"), PushRequest{ChannelId: "test-channel"})

		code, _ := ierr.CodeOf(err)
		assert.Equal(t, ierr.ErrorCodePermissionDenied, code)
	})

	t.Run("invalid channel id", func(t *testing.T) {
		pushHandler := NewPushHandler(validator, mocks.NewMockRegistry(t))

		_, err := pushHandler.Handle(publisherContext("bad channel!"), PushRequest{ChannelId: "bad channel!"})

		code, _ := ierr.CodeOf(err)
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, code)
	})

	t.Run("registry unavailable", func(t *testing.T) {
		registry := mocks.NewMockRegistry(t)
		unavailable := ierr.New(ierr.ErrorCodeChannelUnavailable, broadcaster.ErrChannelUnavailable)
		registry.On("Open", "test-channel").Return(nil, unavailable).Once()

		pushHandler := NewPushHandler(validator, registry)

		_, err := pushHandler.Handle(publisherContext("test-channel"), PushRequest{ChannelId: "test-channel"})

		assert.True(t, errors.Is(err, broadcaster.ErrChannelUnavailable))
	})
}
