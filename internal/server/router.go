package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dividis/backend/internal/auth"
	"github.com/dividis/backend/internal/catalog"
	"github.com/dividis/backend/internal/declarations"
	"github.com/dividis/backend/internal/metrics"
	"github.com/dividis/backend/internal/session"
	"github.com/dividis/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey         = "dividis_user_id"
	defaultPageSize          = 8
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingVerifier     = errors.New("firebase verifier dependency required")
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingUsers        = errors.New("user directory dependency required")
	errMissingDeclarations = errors.New("declaration store dependency required")
	errMissingSessions     = errors.New("session manager dependency required")
	errMissingSharing      = errors.New("sharing service dependency required")
)

// IDTokenVerifier checks Firebase ID tokens.
type IDTokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.FirebaseClaims, error)
}

// BackendTokenManager issues and validates the tokens the API accepts.
type BackendTokenManager interface {
	IssueBackendToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// UserDirectory resolves signed-in users.
type UserDirectory interface {
	ResolveUser(ctx context.Context, claims auth.FirebaseClaims) (string, error)
	Profile(ctx context.Context, userID string) (users.Identity, error)
}

// Dependencies wires the HTTP surface to the services.
type Dependencies struct {
	Verifier          IDTokenVerifier
	TokenManager      BackendTokenManager
	Users             UserDirectory
	Declarations      *declarations.Store
	Sessions          *session.Manager
	Sharing           *declarations.SharingService
	Realtime          *RealtimeDispatcher
	Metrics           *metrics.Registry
	AllowedOrigins    []string
	CookieName        string
	PageSize          int
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the dividis API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUsers
	}
	if deps.Declarations == nil {
		return nil, errMissingDeclarations
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Sharing == nil {
		return nil, errMissingSharing
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	authenticator, err := auth.NewRequestAuthenticator(auth.RequestAuthenticatorConfig{
		Validator:  deps.TokenManager,
		CookieName: deps.CookieName,
	})
	if err != nil {
		return nil, err
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher(deps.Metrics)
	}
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(metricsMiddleware(deps.Metrics))
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		verifier:      deps.Verifier,
		tokens:        deps.TokenManager,
		authenticator: authenticator,
		users:         deps.Users,
		declarations:  deps.Declarations,
		sessions:      deps.Sessions,
		sharing:       deps.Sharing,
		realtime:      realtime,
		pageSize:      pageSize,
		heartbeat:     heartbeat,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/catalog", handler.handleCatalog)
	router.POST("/auth/firebase", handler.handleFirebaseAuth)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/declaraciones", handler.handleListDeclarations)
	protected.POST("/declaraciones", handler.handleCreateDeclaration)
	protected.GET("/declaraciones/stream", handler.handleDeclarationStream)
	protected.PUT("/declaraciones/:id", handler.handleUpdateDeclaration)
	protected.DELETE("/declaraciones/:id", handler.handleDeleteDeclaration)
	protected.POST("/declaraciones/:id/transfer", handler.handleTransferDeclaration)
	protected.POST("/declaraciones/:id/reactions", handler.handleReactDeclaration)
	protected.POST("/declaraciones/:id/share", handler.handleShareDeclaration)
	protected.DELETE("/declaraciones/:id/share", handler.handleUnshareDeclaration)

	protected.GET("/me", handler.handleProfile)
	protected.GET("/me/progress", handler.handleProgress)
	protected.GET("/me/shared", handler.handleShared)
	protected.GET("/me/journey", handler.handleJourney)
	protected.POST("/me/journey/categories", handler.handleAddCategory)
	protected.POST("/me/journey/sentences", handler.handleAddSentence)
	protected.PUT("/me/journey/sentences", handler.handleEditSentence)
	protected.DELETE("/me/journey/sentences", handler.handleDeleteSentence)
	protected.POST("/me/journey/flush", handler.handleFlushJourney)

	return router, nil
}

type httpHandler struct {
	verifier      IDTokenVerifier
	tokens        BackendTokenManager
	authenticator *auth.RequestAuthenticator
	users         UserDirectory
	declarations  *declarations.Store
	sessions      *session.Manager
	sharing       *declarations.SharingService
	realtime      *RealtimeDispatcher
	pageSize      int
	heartbeat     time.Duration
	logger        *zap.Logger
}

type authRequestPayload struct {
	IDToken string `json:"id_token"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"categories":   catalog.Categories(),
		"pilars":       catalog.Pilars(),
		"explanations": catalog.Explanations(),
	})
}

func (h *httpHandler) handleFirebaseAuth(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		writeError(c, http.StatusBadRequest, "invalid_request", "auth.invalid_request")
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("firebase token verification failed", zap.Error(err))
		writeError(c, http.StatusUnauthorized, "unauthorized", "auth.invalid_id_token")
		return
	}

	userID, err := h.users.ResolveUser(c.Request.Context(), claims)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	token, expiresIn, err := h.tokens.IssueBackendToken(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "token_issue_failed", "auth.token_issue_failed")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.authenticator.CookieName(), token, int(expiresIn), "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		UserID:      userID,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	subject, err := h.authenticator.Authenticate(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrMissingCredentials) {
			writeError(c, http.StatusUnauthorized, "unauthorized", "auth.missing_credentials")
			c.Abort()
			return
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		writeError(c, http.StatusUnauthorized, "unauthorized", "auth.invalid_token")
		c.Abort()
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDContextKey)
}
