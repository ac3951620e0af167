package server

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/goevery/broadcastsync/internal/auth"
	"github.com/goevery/broadcastsync/internal/broadcaster"
	"github.com/goevery/broadcastsync/internal/handler"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testBridge struct {
	hub *broadcaster.Hub
	url string
}

func newTestBridge(t *testing.T, options WebSocketOptions) *testBridge {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	hub := broadcaster.NewHub(logger)
	authenticator := auth.NewAuthenticator("test-secret", []string{"test-api-key"})
	channelIdValidator := handler.NewChannelIdValidator()

	router := NewRouter(
		logger,
		handler.NewHeartbeatHandler(),
		handler.NewAuthHandler(authenticator),
		handler.NewJoinHandler(channelIdValidator, hub),
		handler.NewLeaveHandler(channelIdValidator),
		handler.NewPushHandler(channelIdValidator, hub),
		handler.NewChannelsHandler(hub),
	)

	wsServer := NewWebSocketServer(logger, &websocket.Upgrader{}, router, options)

	mainRouter := mux.NewRouter()
	wsServer.Register(mainRouter)

	server := httptest.NewServer(mainRouter)
	t.Cleanup(server.Close)

	u, _ := url.Parse(server.URL)
	u.Scheme = "ws"
	u.Path = "/websocket"

	return &testBridge{
		hub: hub,
		url: u.String(),
	}
}

func (b *testBridge) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(b.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func signToken(t *testing.T, channels []string, scope []string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":                "test-user",
		"exp":                time.Now().Add(time.Hour).Unix(),
		"iat":                time.Now().Unix(),
		"aud":                "broadcaster",
		"authorizedChannels": channels,
		"scope":              scope,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	return tokenString
}

func call(t *testing.T, conn *websocket.Conn, id int, method string, params string) handler.Response {
	t.Helper()

	request := json.RawMessage(fmt.Sprintf(`{"id":%d,"method":%q,"params":%s}`, id, method, params))
	require.NoError(t, conn.WriteJSON(request))

	var response handler.Response
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&response))
	assert.Equal(t, id, response.RequestId)

	return response
}

func authenticate(t *testing.T, conn *websocket.Conn, channels []string, scope []string) {
	t.Helper()

	response := call(t, conn, 1, "auth", `{"token":"`+signToken(t, channels, scope)+`"}`)
	require.Nil(t, response.Error)

	var payload handler.AuthResponse
	require.NoError(t, json.Unmarshal(*response.Result, &payload))
	require.True(t, payload.Success)
}

func readBroadcast(t *testing.T, conn *websocket.Conn) broadcaster.Message {
	t.Helper()

	var notification handler.Request
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&notification))
	require.Equal(t, "broadcast", notification.Method)

	var message broadcaster.Message
	require.NoError(t, json.Unmarshal(*notification.Params, &message))

	return message
}

func TestWebSocketServer(t *testing.T) {
	bridge := newTestBridge(t, DefaultWebSocketOptions())

	t.Run("successful flow", func(t *testing.T) {
		conn := bridge.dial(t)
		authenticate(t, conn, []string{"test-channel"}, []string{"subscribe"})

		joinResponse := call(t, conn, 2, "join", `{"channelId":"test-channel"}`)
		require.Nil(t, joinResponse.Error)

		var joinPayload handler.JoinResponse
		require.NoError(t, json.Unmarshal(*joinResponse.Result, &joinPayload))
		assert.NotEmpty(t, joinPayload.SubscriptionId)

		publisher, err := bridge.hub.Open("test-channel")
		require.NoError(t, err)
		defer publisher.Close()

		sent, err := publisher.Publish(json.RawMessage(`"test-payload"`))
		require.NoError(t, err)

		message := readBroadcast(t, conn)
		assert.Equal(t, sent.Id, message.Id)
		assert.Equal(t, "test-channel", message.Channel)
		assert.Equal(t, `"test-payload"`, string(message.Payload))

		leaveResponse := call(t, conn, 3, "leave", `{"channelId":"test-channel"}`)
		require.Nil(t, leaveResponse.Error)
		assert.Equal(t, 1, bridge.hub.Members("test-channel"))
	})

	t.Run("heartbeat", func(t *testing.T) {
		conn := bridge.dial(t)

		response := call(t, conn, 1, "heartbeat", `null`)

		assert.Nil(t, response.Error)
		assert.NotNil(t, response.Result)
	})

	t.Run("unknown method", func(t *testing.T) {
		conn := bridge.dial(t)

		response := call(t, conn, 1, "subscribe", `{}`)

		require.NotNil(t, response.Error)
		assert.Equal(t, "NotFound", string(response.Error.Code))
	})

	t.Run("invalid message", func(t *testing.T) {
		conn := bridge.dial(t)

		err := conn.WriteMessage(websocket.TextMessage, []byte("invalid-json"))
		assert.NoError(t, err)

		conn.SetReadDeadline(time.Now().Add(time.Second * 10))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err)
		assert.True(t, websocket.IsCloseError(err, websocket.CloseInvalidFramePayloadData))
	})

	t.Run("join without auth", func(t *testing.T) {
		conn := bridge.dial(t)

		response := call(t, conn, 1, "join", `{"channelId":"test-channel"}`)

		require.NotNil(t, response.Error)
		assert.Equal(t, "Unauthenticated", string(response.Error.Code))
	})

	t.Run("join unauthorized channel", func(t *testing.T) {
		conn := bridge.dial(t)
		authenticate(t, conn, []string{"another-channel"}, []string{"subscribe"})

		response := call(t, conn, 2, "join", `{"channelId":"test-channel"}`)

		require.NotNil(t, response.Error)
		assert.Equal(t, "PermissionDenied", string(response.Error.Code))
	})

	t.Run("join without subscribe scope", func(t *testing.T) {
		conn := bridge.dial(t)
		authenticate(t, conn, []string{"test-channel"}, []string{"publish"})

		response := call(t, conn, 2, "join", `{"channelId":"test-channel"}`)

		require.NotNil(t, response.Error)
		assert.Equal(t, "PermissionDenied", string(response.Error.Code))
	})

	t.Run("authenticate twice", func(t *testing.T) {
		conn := bridge.dial(t)
		authenticate(t, conn, []string{"test-channel"}, []string{"subscribe"})

		response := call(t, conn, 2, "auth", `{"token":"`+signToken(t, []string{"test-channel"}, []string{"subscribe"})+`"}`)

		require.NotNil(t, response.Error)
		assert.Equal(t, "FailedPrecondition", string(response.Error.Code))
	})

	t.Run("push without publish scope", func(t *testing.T) {
		conn := bridge.dial(t)
		authenticate(t, conn, []string{"test-channel"}, []string{"subscribe"})

		response := call(t, conn, 2, "push", `{"channelId":"test-channel","payload":{"foo":"bar"}}`)

		require.NotNil(t, response.Error)
		assert.Equal(t, "PermissionDenied", string(response.Error.Code))
	})

	t.Run("push reaches other connections but not the sender", func(t *testing.T) {
		sender := bridge.dial(t)
		authenticate(t, sender, []string{"room:*"}, []string{"publish", "subscribe"})
		require.Nil(t, call(t, sender, 2, "join", `{"channelId":"room:1"}`).Error)

		receiver := bridge.dial(t)
		authenticate(t, receiver, []string{"room:1"}, []string{"subscribe"})
		require.Nil(t, call(t, receiver, 2, "join", `{"channelId":"room:1"}`).Error)

		pushResponse := call(t, sender, 3, "push", `{"channelId":"room:1","payload":{"foo":"bar"}}`)
		require.Nil(t, pushResponse.Error)

		message := readBroadcast(t, receiver)
		assert.JSONEq(t, `{"foo":"bar"}`, string(message.Payload))

		heartbeat := call(t, sender, 4, "heartbeat", `null`)
		assert.Nil(t, heartbeat.Error)
	})

	t.Run("channels", func(t *testing.T) {
		conn := bridge.dial(t)
		authenticate(t, conn, []string{"listed"}, []string{"subscribe"})
		require.Nil(t, call(t, conn, 2, "join", `{"channelId":"listed"}`).Error)

		response := call(t, conn, 3, "channels", `null`)
		require.Nil(t, response.Error)

		var payload handler.ChannelsResponse
		require.NoError(t, json.Unmarshal(*response.Result, &payload))
		assert.Equal(t, []broadcaster.Group{{Name: "listed", Members: 1}}, payload.Channels)
	})

	t.Run("disconnect releases channels", func(t *testing.T) {
		conn := bridge.dial(t)
		authenticate(t, conn, []string{"released"}, []string{"subscribe"})
		require.Nil(t, call(t, conn, 2, "join", `{"channelId":"released"}`).Error)
		require.Equal(t, 1, bridge.hub.Members("released"))

		conn.Close()

		assert.Eventually(t, func() bool {
			return bridge.hub.Members("released") == 0
		}, time.Second, 5*time.Millisecond)
	})
}

func TestWebSocketServer_PushRateLimit(t *testing.T) {
	options := DefaultWebSocketOptions()
	options.PushRate = 0
	options.PushBurst = 1

	bridge := newTestBridge(t, options)
	conn := bridge.dial(t)
	authenticate(t, conn, []string{"test-channel"}, []string{"publish"})

	first := call(t, conn, 2, "push", `{"channelId":"test-channel","payload":1}`)
	assert.Nil(t, first.Error)

	second := call(t, conn, 3, "push", `{"channelId":"test-channel","payload":2}`)
	require.NotNil(t, second.Error)
	assert.Equal(t, "ResourceExhausted", string(second.Error.Code))
}
