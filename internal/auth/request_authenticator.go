package auth

import (
	"errors"
	"net/http"
	"strings"
)

const (
	// DefaultSessionCookieName carries the backend token for browser clients.
	DefaultSessionCookieName = "dividis_session"
	// AccessTokenQueryParameter carries the backend token for EventSource clients,
	// which cannot set headers.
	AccessTokenQueryParameter = "access_token"
	bearerPrefix              = "bearer "
)

var (
	// ErrMissingCredentials reports a request without any backend token.
	ErrMissingCredentials = errors.New("auth: credentials required")
	errMissingValidator   = errors.New("request authenticator: token validator required")
)

// TokenValidator turns a backend token into the user id it was issued for.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// RequestAuthenticatorConfig describes where request credentials are read from.
type RequestAuthenticatorConfig struct {
	Validator  TokenValidator
	CookieName string
}

// RequestAuthenticator resolves the user behind an HTTP request.
type RequestAuthenticator struct {
	validator  TokenValidator
	cookieName string
}

// NewRequestAuthenticator constructs an authenticator with the provided configuration.
func NewRequestAuthenticator(cfg RequestAuthenticatorConfig) (*RequestAuthenticator, error) {
	if cfg.Validator == nil {
		return nil, errMissingValidator
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = DefaultSessionCookieName
	}
	return &RequestAuthenticator{validator: cfg.Validator, cookieName: cookieName}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (a *RequestAuthenticator) CookieName() string {
	return a.cookieName
}

// Authenticate validates the first credential found, checking the
// Authorization header, then the session cookie, then the access_token query
// parameter.
func (a *RequestAuthenticator) Authenticate(r *http.Request) (string, error) {
	token := a.extractToken(r)
	if token == "" {
		return "", ErrMissingCredentials
	}
	return a.validator.ValidateToken(token)
}

func (a *RequestAuthenticator) extractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}
	if cookie, err := r.Cookie(a.cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}
	return strings.TrimSpace(r.URL.Query().Get(AccessTokenQueryParameter))
}
