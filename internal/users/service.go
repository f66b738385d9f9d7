package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/dividis/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew = "users.service.new"
	opResolve    = "users.resolve"
	opExists     = "users.exists"
	opProfile    = "users.profile"

	defaultProvider = "firebase"

	reasonMissingDatabase = "missing_database"
	reasonInvalidIdentity = "invalid_identity"
	reasonQueryFailed     = "query_failed"
	reasonWriteFailed     = "write_failed"
	reasonUnknownUser     = "unknown_user"
)

var (
	errMissingDatabase = errors.New("database connection required")
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	errUnknownUser     = errors.New("users: no identity for user id")
)

// ServiceConfig describes the dependencies required for user identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages the identities of authenticated users.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	known  sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.New(apperrors.KindInternal, opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// ResolveUser returns the user id for verified Firebase claims, recording the
// identity on first sight and refreshing its profile fields afterwards.
func (s *Service) ResolveUser(ctx context.Context, claims auth.FirebaseClaims) (string, error) {
	subject := normalize(claims.Subject)
	if subject == "" {
		return "", apperrors.New(apperrors.KindUnauthenticated, opResolve, reasonInvalidIdentity, ErrInvalidIdentity)
	}
	provider := defaultProvider

	var identity Identity
	err := s.db.WithContext(ctx).
		Where("provider = ? AND subject = ?", provider, subject).
		First(&identity).
		Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identity = Identity{
			Provider:    provider,
			Subject:     subject,
			UserID:      subject,
			Email:       normalize(claims.Email),
			DisplayName: normalize(claims.DisplayName),
			AvatarURL:   normalize(claims.PictureURL),
			LastSeenAt:  s.now(),
		}
		if err := s.db.WithContext(ctx).Create(&identity).Error; err != nil {
			s.logError(opResolve, reasonWriteFailed, err)
			return "", apperrors.Persistence(opResolve, reasonWriteFailed, err)
		}
	case err != nil:
		s.logError(opResolve, reasonQueryFailed, err)
		return "", apperrors.Persistence(opResolve, reasonQueryFailed, err)
	default:
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if email := normalize(claims.Email); email != "" && email != identity.Email {
			updates["user_email"] = email
		}
		if display := normalize(claims.DisplayName); display != "" && display != identity.DisplayName {
			updates["user_display_name"] = display
		}
		if avatar := normalize(claims.PictureURL); avatar != "" && avatar != identity.AvatarURL {
			updates["user_avatar_url"] = avatar
		}
		if err := s.db.WithContext(ctx).Model(&Identity{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Updates(updates).
			Error; err != nil {
			s.logger.Warn("identity refresh failed", zap.String("operation", opResolve), zap.Error(err))
		}
	}

	s.known.Store(identity.UserID, struct{}{})
	return identity.UserID, nil
}

// UserExists reports whether userID has signed in at least once.
func (s *Service) UserExists(ctx context.Context, userID string) (bool, error) {
	userID = normalize(userID)
	if userID == "" {
		return false, nil
	}
	if _, ok := s.known.Load(userID); ok {
		return true, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&Identity{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		s.logError(opExists, reasonQueryFailed, err)
		return false, apperrors.Persistence(opExists, reasonQueryFailed, err)
	}
	if count == 0 {
		return false, nil
	}
	s.known.Store(userID, struct{}{})
	return true, nil
}

// Profile returns the most recently seen identity of userID.
func (s *Service) Profile(ctx context.Context, userID string) (Identity, error) {
	var identity Identity
	err := s.db.WithContext(ctx).
		Where("user_id = ?", normalize(userID)).
		Order("last_seen_at DESC").
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, apperrors.NotFound(opProfile, reasonUnknownUser, errUnknownUser)
	}
	if err != nil {
		s.logError(opProfile, reasonQueryFailed, err)
		return Identity{}, apperrors.Persistence(opProfile, reasonQueryFailed, err)
	}
	return identity, nil
}

func (s *Service) logError(operation, reason string, err error) {
	s.logger.Error("users service error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err))
}
