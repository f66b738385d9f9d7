package progression

import (
	"context"
	"errors"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/dividis/backend/internal/docstore"
	"go.uber.org/zap"
)

const (
	opRepositoryNew  = "progression.repository.new"
	opRepositoryLoad = "progression.repository.load"
	opRepositorySave = "progression.repository.save"

	reasonMissingClient = "missing_client"
	reasonMissingUser   = "missing_user"
	reasonReadFailed    = "read_failed"
	reasonDecodeFailed  = "decode_failed"
	reasonEncodeFailed  = "encode_failed"
	reasonWriteFailed   = "write_failed"
)

var (
	errMissingClient = errors.New("document client is required")
	errMissingUser   = errors.New("user id is required")
	noOpLogger       = zap.NewNop()
)

// RepositoryConfig describes the dependencies of a Repository.
type RepositoryConfig struct {
	Client docstore.Client
	Logger *zap.Logger
}

// Repository reads and merge-writes usuarios/{uid}/datos/progreso.
type Repository struct {
	client docstore.Client
	logger *zap.Logger
}

// NewRepository validates the configuration.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Client == nil {
		return nil, apperrors.New(apperrors.KindInternal, opRepositoryNew, reasonMissingClient, errMissingClient)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Repository{client: cfg.Client, logger: logger}, nil
}

// Load returns the stored progress and whether the document exists. Missing
// fields are filled with new-user defaults.
func (r *Repository) Load(ctx context.Context, userID string) (Progress, bool, error) {
	if userID == "" {
		return Progress{}, false, apperrors.New(apperrors.KindUnauthenticated, opRepositoryLoad, reasonMissingUser, errMissingUser)
	}
	snapshot, err := r.client.Get(ctx, docstore.UserProgress(userID))
	if err != nil {
		r.logError(opRepositoryLoad, reasonReadFailed, err, zap.String("user_id", userID))
		return Progress{}, false, apperrors.Persistence(opRepositoryLoad, reasonReadFailed, err)
	}
	if !snapshot.Exists {
		return DefaultProgress(), false, nil
	}
	var progress Progress
	if err := docstore.Decode(snapshot.Data, &progress); err != nil {
		r.logError(opRepositoryLoad, reasonDecodeFailed, err, zap.String("user_id", userID))
		return Progress{}, true, apperrors.Persistence(opRepositoryLoad, reasonDecodeFailed, err)
	}
	return progress.normalize(), true, nil
}

// Save merge-writes the whole progression document.
func (r *Repository) Save(ctx context.Context, userID string, progress Progress) error {
	if userID == "" {
		return apperrors.New(apperrors.KindUnauthenticated, opRepositorySave, reasonMissingUser, errMissingUser)
	}
	data, err := docstore.Encode(progress)
	if err != nil {
		return apperrors.New(apperrors.KindInternal, opRepositorySave, reasonEncodeFailed, err)
	}
	if err := r.client.Set(ctx, docstore.UserProgress(userID), data, docstore.SetOptions{Merge: true}); err != nil {
		r.logError(opRepositorySave, reasonWriteFailed, err, zap.String("user_id", userID))
		return apperrors.Persistence(opRepositorySave, reasonWriteFailed, err)
	}
	return nil
}

func (r *Repository) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	r.logger.Error("progression repository error", append(attrs, fields...)...)
}
