// Package progression implements the experience and unlock state machine of
// one user together with its persistence.
package progression

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/dividis/backend/internal/catalog"
	"go.uber.org/zap"
)

const (
	opManagerNew      = "progression.manager.new"
	opManagerLoad     = "progression.load"
	opAddExperience   = "progression.add_experience"
	opUnlockPilar     = "progression.unlock_pilar"
	reasonMissingRepo = "missing_repository"
	reasonInvalid     = "invalid_amount"
	reasonUnknown     = "unknown_pilar"
	reasonNoCategory  = "missing_category"
)

var (
	errMissingRepository = errors.New("progression repository is required")
	errNegativeAmount    = errors.New("experience amount must not be negative")
	errUnknownPilar      = errors.New("pilar is not part of the catalog")
	errMissingCategory   = errors.New("category is required")
)

// ManagerConfig describes the dependencies of a Manager.
type ManagerConfig struct {
	UserID     string
	Repository *Repository
	Logger     *zap.Logger
}

// Manager holds the authoritative in-memory progress of one user. Every
// mutation is followed by a merge-write of the whole document. A failed write
// leaves local state ahead of the stored one until the next successful save.
type Manager struct {
	userID     string
	repository *Repository
	logger     *zap.Logger

	mu       sync.RWMutex
	progress Progress
	loaded   bool
}

// NewManager returns a Manager primed with new-user defaults.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Repository == nil {
		return nil, apperrors.New(apperrors.KindInternal, opManagerNew, reasonMissingRepo, errMissingRepository)
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, apperrors.New(apperrors.KindUnauthenticated, opManagerNew, reasonMissingUser, errMissingUser)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Manager{
		userID:     cfg.UserID,
		repository: cfg.Repository,
		logger:     logger.With(zap.String("user_id", cfg.UserID)),
		progress:   DefaultProgress(),
	}, nil
}

// Load reads the stored progress. A user without a document gets the
// defaults, which are written back immediately.
func (m *Manager) Load(ctx context.Context) error {
	progress, exists, err := m.repository.Load(ctx, m.userID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.progress = progress
	m.loaded = true
	m.mu.Unlock()
	if exists {
		return nil
	}
	if err := m.repository.Save(ctx, m.userID, progress); err != nil {
		m.logger.Warn("initial progress write failed", zap.String("operation", opManagerLoad), zap.Error(err))
		return err
	}
	return nil
}

// Loaded reports whether Load completed at least once.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// AddExperience adds amount and rolls over every full level, unlocking the
// category of each new level and its Vision pilar. It returns the number of
// levels gained.
func (m *Manager) AddExperience(ctx context.Context, amount int) (int, error) {
	if amount < 0 {
		return 0, apperrors.Validation(opAddExperience, reasonInvalid, errNegativeAmount)
	}
	m.mu.Lock()
	levelUps := m.progress.addExperience(amount)
	snapshot := m.progress.Clone()
	m.mu.Unlock()

	if levelUps > 0 {
		m.logger.Info("level gained",
			zap.Int("level", snapshot.Level),
			zap.Int("levels_gained", levelUps))
	}
	if err := m.repository.Save(ctx, m.userID, snapshot); err != nil {
		return levelUps, err
	}
	return levelUps, nil
}

// UnlockPilar unlocks the pilar that follows completedPilar in category.
// Completing the last pilar is a no-op.
func (m *Manager) UnlockPilar(ctx context.Context, category, completedPilar string) error {
	if strings.TrimSpace(category) == "" {
		return apperrors.Validation(opUnlockPilar, reasonNoCategory, errMissingCategory)
	}
	if !catalog.IsPilar(completedPilar) {
		return apperrors.Validation(opUnlockPilar, reasonUnknown, errUnknownPilar)
	}
	next, ok := catalog.NextPilar(completedPilar)
	if !ok {
		return nil
	}
	m.mu.Lock()
	changed := m.progress.unlockPilar(category, next)
	snapshot := m.progress.Clone()
	m.mu.Unlock()
	if !changed {
		return nil
	}
	return m.repository.Save(ctx, m.userID, snapshot)
}

// Save writes the current progress.
func (m *Manager) Save(ctx context.Context) error {
	return m.repository.Save(ctx, m.userID, m.Snapshot())
}

// IsPilarUnlocked reports whether "{category}-{pilar}" is unlocked.
func (m *Manager) IsPilarUnlocked(category, pilar string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.progress.isPilarUnlocked(category, pilar)
}

// IsCategoriaUnlocked reports whether the category is unlocked.
func (m *Manager) IsCategoriaUnlocked(category string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.progress.UnlockedCategorias, category)
}

// UnlockedPilarsByCategory lists the unlocked pilar names of category.
func (m *Manager) UnlockedPilarsByCategory(category string) []string {
	prefix := category + "-"
	m.mu.RLock()
	defer m.mu.RUnlock()
	pilars := make([]string, 0, len(catalog.Pilars()))
	for _, key := range m.progress.UnlockedPilares {
		if name, found := strings.CutPrefix(key, prefix); found {
			pilars = append(pilars, name)
		}
	}
	return pilars
}

// Snapshot returns a copy of the current progress.
func (m *Manager) Snapshot() Progress {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.progress.Clone()
}
