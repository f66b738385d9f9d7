// Package session owns the per-user stores: one journey store and one
// progression manager per authenticated user, created on first use and
// shared by every request of that user.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/dividis/backend/internal/declarations"
	"github.com/dividis/backend/internal/docstore"
	"github.com/dividis/backend/internal/journey"
	"github.com/dividis/backend/internal/progression"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	opManagerNew = "session.manager.new"
	opOpen       = "session.open"
	opOverview   = "session.overview"
	opAppend     = "session.append_shared_sentence"

	reasonMissingClient = "missing_client"
	reasonMissingUser   = "missing_user"
)

var (
	errMissingClient = errors.New("document client is required")
	errMissingUser   = errors.New("user id is required")
)

// ManagerConfig describes the dependencies of a Manager.
type ManagerConfig struct {
	Client                docstore.Client
	Sharing               *declarations.SharingService
	ExperiencePerSentence int
	SeedDefaults          bool
	Logger                *zap.Logger
}

// Session groups the stores of one user.
type Session struct {
	UserID   string
	Journey  *journey.Store
	Progress *progression.Manager
}

// Overview is the combined view of a user's journey, progression and shared
// record.
type Overview struct {
	Progress   progression.Progress       `json:"progress"`
	Categories []journey.Category         `json:"categories"`
	Shared     []declarations.Declaration `json:"shared"`
}

// Manager is the registry of live sessions.
type Manager struct {
	journeys   *journey.Repository
	progress   *progression.Repository
	sharing    *declarations.SharingService
	experience int
	seed       bool
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

var _ declarations.JourneySink = (*Manager)(nil)

// NewManager builds the repositories shared by every session.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Client == nil {
		return nil, apperrors.New(apperrors.KindInternal, opManagerNew, reasonMissingClient, errMissingClient)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	journeys, err := journey.NewRepository(journey.RepositoryConfig{Client: cfg.Client, Logger: logger})
	if err != nil {
		return nil, err
	}
	progress, err := progression.NewRepository(progression.RepositoryConfig{Client: cfg.Client, Logger: logger})
	if err != nil {
		return nil, err
	}
	return &Manager{
		journeys:   journeys,
		progress:   progress,
		sharing:    cfg.Sharing,
		experience: cfg.ExperiencePerSentence,
		seed:       cfg.SeedDefaults,
		logger:     logger,
		sessions:   make(map[string]*Session),
	}, nil
}

// Open returns the loaded session of userID, creating it on first use.
// A failed initial load is retried by the next call.
func (m *Manager) Open(ctx context.Context, userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.New(apperrors.KindUnauthenticated, opOpen, reasonMissingUser, errMissingUser)
	}
	session, err := m.lookup(userID)
	if err != nil {
		return nil, err
	}
	if err := session.Journey.LoadInitial(ctx); err != nil {
		m.logger.Warn("session load failed",
			zap.String("operation", opOpen),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, err
	}
	return session, nil
}

func (m *Manager) lookup(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[userID]; ok {
		return existing, nil
	}
	progress, err := progression.NewManager(progression.ManagerConfig{
		UserID:     userID,
		Repository: m.progress,
		Logger:     m.logger,
	})
	if err != nil {
		return nil, err
	}
	store, err := journey.NewStore(journey.StoreConfig{
		UserID:                userID,
		Repository:            m.journeys,
		Progress:              progress,
		ExperiencePerSentence: m.experience,
		SeedDefaults:          m.seed,
		Logger:                m.logger,
	})
	if err != nil {
		return nil, err
	}
	created := &Session{UserID: userID, Journey: store, Progress: progress}
	m.sessions[userID] = created
	return created, nil
}

// Evict drops the cached session of userID. Pending journey changes are lost
// unless flushed first.
func (m *Manager) Evict(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// Active reports how many sessions are cached.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Overview loads the session and the shared record of userID concurrently.
func (m *Manager) Overview(ctx context.Context, userID string) (Overview, error) {
	var (
		session *Session
		shared  []declarations.Declaration
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		opened, err := m.Open(groupCtx, userID)
		if err != nil {
			return err
		}
		session = opened
		return nil
	})
	if m.sharing != nil {
		group.Go(func() error {
			records, err := m.sharing.SharedDeclarations(groupCtx, userID)
			if err != nil {
				return err
			}
			shared = records
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		m.logger.Warn("session overview failed",
			zap.String("operation", opOverview),
			zap.String("user_id", userID),
			zap.Error(err))
		return Overview{}, err
	}
	if shared == nil {
		shared = []declarations.Declaration{}
	}
	return Overview{
		Progress:   session.Progress.Snapshot(),
		Categories: session.Journey.Categories(),
		Shared:     shared,
	}, nil
}

// AppendSharedSentence adds texto to the user's journey and flushes it, so a
// shared declaration becomes part of the sharer's own journey.
func (m *Manager) AppendSharedSentence(ctx context.Context, userID, categoria, pilar, texto string) error {
	session, err := m.Open(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := session.Journey.AddSentence(ctx, categoria, pilar, texto); err != nil {
		return err
	}
	if err := session.Journey.Flush(ctx); err != nil {
		m.logger.Warn("shared sentence flush failed",
			zap.String("operation", opAppend),
			zap.String("user_id", userID),
			zap.Error(err))
		return err
	}
	return nil
}
