package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/dividis/backend/internal/auth"
	"github.com/dividis/backend/internal/config"
	"github.com/dividis/backend/internal/database"
	"github.com/dividis/backend/internal/declarations"
	"github.com/dividis/backend/internal/docstore"
	"github.com/dividis/backend/internal/metrics"
	"github.com/dividis/backend/internal/optimistic"
	"github.com/dividis/backend/internal/server"
	"github.com/dividis/backend/internal/session"
	"github.com/dividis/backend/internal/users"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// application holds the long-lived services shared by the serve and
// seed-journey commands.
type application struct {
	logger       *zap.Logger
	sqlDB        *sql.DB
	redis        *redis.Client
	metrics      *metrics.Registry
	users        *users.Service
	sharing      *declarations.SharingService
	sessions     *session.Manager
	realtime     *server.RealtimeDispatcher
	declarations *declarations.Store
}

func newApplication(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (*application, error) {
	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	app := &application{logger: logger, sqlDB: sqlDB, metrics: metrics.NewRegistry()}

	documents, err := docstore.NewService(docstore.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		app.Close()
		return nil, err
	}
	var client docstore.Client = documents
	if appConfig.RedisURL != "" {
		options, err := redis.ParseURL(appConfig.RedisURL)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.redis = redis.NewClient(options)
		if err := app.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable; cache requests will fall through", zap.Error(err))
		}
		client, err = docstore.NewCachedClient(docstore.CachedClientConfig{
			Next:     documents,
			Redis:    app.redis,
			TTL:      appConfig.RedisTTL,
			Logger:   logger,
			Observer: app.metrics,
		})
		if err != nil {
			app.Close()
			return nil, err
		}
	}

	if app.users, err = users.NewService(users.ServiceConfig{Database: db, Logger: logger}); err != nil {
		app.Close()
		return nil, err
	}
	if app.sharing, err = declarations.NewSharingService(declarations.SharingServiceConfig{Client: client, Logger: logger}); err != nil {
		app.Close()
		return nil, err
	}
	repository, err := declarations.NewRepository(declarations.RepositoryConfig{Client: client, Logger: logger})
	if err != nil {
		app.Close()
		return nil, err
	}
	if app.sessions, err = session.NewManager(session.ManagerConfig{
		Client:                client,
		Sharing:               app.sharing,
		ExperiencePerSentence: appConfig.ExperiencePerSentence,
		SeedDefaults:          appConfig.SeedDefaults,
		Logger:                logger,
	}); err != nil {
		app.Close()
		return nil, err
	}
	app.realtime = server.NewRealtimeDispatcher(app.metrics)
	if app.declarations, err = declarations.NewStore(declarations.StoreConfig{
		Repository: repository,
		Sharing:    app.sharing,
		Journey:    app.sessions,
		Owners:     app.users,
		Publisher:  app.realtime,
		Runner:     optimistic.NewRunner(optimistic.RunnerConfig{Logger: logger, Recorder: app.metrics}),
		Clock:      time.Now,
		Logger:     logger,
	}); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *application) httpHandler(appConfig config.AppConfig) (http.Handler, error) {
	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return nil, err
	}
	verifier, err := auth.NewFirebaseVerifier(auth.FirebaseVerifierConfig{
		ProjectID: appConfig.FirebaseProjectID,
		JWKSURL:   appConfig.FirebaseJWKSURL,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}
	return server.NewHTTPHandler(server.Dependencies{
		Verifier:       verifier,
		TokenManager:   tokenManager,
		Users:          a.users,
		Declarations:   a.declarations,
		Sessions:       a.sessions,
		Sharing:        a.sharing,
		Realtime:       a.realtime,
		Metrics:        a.metrics,
		AllowedOrigins: appConfig.AllowedOrigins,
		CookieName:     appConfig.CookieName,
		PageSize:       appConfig.FeedPageSize,
		Logger:         a.logger,
	})
}

// Close releases the database and cache connections.
func (a *application) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.sqlDB != nil {
		if err := a.sqlDB.Close(); err != nil {
			a.logger.Warn("database close failed", zap.Error(err))
		}
	}
}
