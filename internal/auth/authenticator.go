package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/goevery/broadcastsync/internal/ierr"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ScopePublish   = "publish"
	ScopeSubscribe = "subscribe"

	audience = "broadcaster"
)

type Claims struct {
	jwt.RegisteredClaims
	AuthorizedChannels []string `json:"authorizedChannels,omitempty"`
	Scope              []string `json:"scope,omitempty"`
}

type Authentication struct {
	Subject            string
	AuthorizedChannels []string
	Scope              []string
	IsAdmin            bool
}

func (a *Authentication) IsPublisher() bool {
	return slices.Contains(a.Scope, ScopePublish)
}

func (a *Authentication) IsSubscriber() bool {
	return slices.Contains(a.Scope, ScopeSubscribe)
}

// IsAuthorized reports whether channel is covered by the authorized channels.
// An entry ending in "*" authorizes every channel with that prefix.
func (a *Authentication) IsAuthorized(channel string) bool {
	if a.Subject == "" {
		return false
	}

	if a.IsAdmin {
		return true
	}

	return slices.ContainsFunc(a.AuthorizedChannels, func(pattern string) bool {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			return strings.HasPrefix(channel, prefix)
		}

		return pattern == channel
	})
}

type contextKey string

const authenticationKey contextKey = "authentication"

func WithAuthentication(ctx context.Context, auth *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey, auth)
}

func AuthenticationFromContext(ctx context.Context) (*Authentication, bool) {
	auth, ok := ctx.Value(authenticationKey).(*Authentication)
	return auth, ok
}

type Authenticator struct {
	secret    []byte
	apiKeys   []string
	jwtParser *jwt.Parser
}

func NewAuthenticator(secret string, apiKeys []string) *Authenticator {
	jwtParser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithAudience(audience),
	)

	return &Authenticator{
		secret:    []byte(secret),
		apiKeys:   apiKeys,
		jwtParser: jwtParser,
	}
}

func (a *Authenticator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("unexpected signing method"))
	}
	return a.secret, nil
}

func (a *Authenticator) AuthenticateJWT(tokenString string) (*Authentication, error) {
	claims := Claims{}

	_, err := a.jwtParser.ParseWithClaims(tokenString, &claims, a.keyFunc)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid subject claim"))
	}

	if len(claims.AuthorizedChannels) == 0 {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("authorized channels cannot be empty"))
	}

	return &Authentication{
		Subject:            subject,
		AuthorizedChannels: claims.AuthorizedChannels,
		Scope:              claims.Scope,
		IsAdmin:            false,
	}, nil
}

func (a *Authenticator) AuthenticateAPIKey(apiKey string) (*Authentication, error) {
	for _, key := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			return &Authentication{
				Subject: "api",
				Scope:   []string{ScopePublish},
				IsAdmin: true,
			}, nil
		}
	}

	return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("invalid api key"))
}

// AuthenticateBearer accepts either an API key or a JWT.
func (a *Authenticator) AuthenticateBearer(token string) (*Authentication, error) {
	authentication, err := a.AuthenticateAPIKey(token)
	if err == nil {
		return authentication, nil
	}

	return a.AuthenticateJWT(token)
}
