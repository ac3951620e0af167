package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/goevery/broadcastsync/internal/auth"
	"github.com/goevery/broadcastsync/internal/handler"
	"github.com/goevery/broadcastsync/internal/ierr"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type RESTServer struct {
	logger *zap.Logger

	pushHandler     handler.PushHandlerInterface
	channelsHandler handler.ChannelsHandlerInterface
	authenticator   *auth.Authenticator
}

func NewRESTServer(
	logger *zap.Logger,
	pushHandler handler.PushHandlerInterface,
	channelsHandler handler.ChannelsHandlerInterface,
	authenticator *auth.Authenticator,
) *RESTServer {
	return &RESTServer{
		logger,
		pushHandler,
		channelsHandler,
		authenticator,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/push", s.cors(s.authenticated(s.push))).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/channels", s.cors(s.authenticated(s.channels))).Methods(http.MethodGet, http.MethodOptions)
}

func (s *RESTServer) push(w http.ResponseWriter, r *http.Request) {
	var pushRequest handler.PushRequest
	err := json.NewDecoder(r.Body).Decode(&pushRequest)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	message, err := s.pushHandler.Handle(r.Context(), pushRequest)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, message)
}

func (s *RESTServer) channels(w http.ResponseWriter, r *http.Request) {
	response, err := s.channelsHandler.Handle(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, response)
}

func (s *RESTServer) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			return
		}

		next(w, r)
	}
}

func (s *RESTServer) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		authentication, err := s.authenticator.AuthenticateBearer(token)
		if err != nil {
			s.writeError(w, err)
			return
		}

		next(w, r.WithContext(auth.WithAuthentication(r.Context(), authentication)))
	}
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *RESTServer) writeError(w http.ResponseWriter, err error) {
	var handlerErr ierr.Error
	if !errors.As(err, &handlerErr) {
		s.logger.Error("failed to handle request", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(handlerErr.Code))

	err = json.NewEncoder(w).Encode(handlerErr)
	if err != nil {
		s.logger.Error("failed to encode error", zap.Error(err))
	}
}

func httpStatus(code ierr.ErrorCode) int {
	switch code {
	case ierr.ErrorCodeInvalidArgument:
		return http.StatusBadRequest
	case ierr.ErrorCodeNotFound:
		return http.StatusNotFound
	case ierr.ErrorCodeAlreadyExists:
		return http.StatusConflict
	case ierr.ErrorCodeFailedPrecondition, ierr.ErrorCodeChannelClosed:
		return http.StatusPreconditionFailed
	case ierr.ErrorCodePermissionDenied:
		return http.StatusForbidden
	case ierr.ErrorCodeUnauthenticated:
		return http.StatusUnauthorized
	case ierr.ErrorCodeResourceExhausted:
		return http.StatusTooManyRequests
	case ierr.ErrorCodeChannelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
