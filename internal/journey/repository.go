package journey

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/dividis/backend/internal/docstore"
	"go.uber.org/zap"
)

const (
	opRepositoryNew  = "journey.repository.new"
	opRepositoryLoad = "journey.repository.load"
	opRepositorySave = "journey.repository.save"

	reasonMissingClient = "missing_client"
	reasonMissingUser   = "missing_user"
	reasonInvalidTree   = "invalid_tree"
	reasonReadFailed    = "read_failed"
	reasonDecodeFailed  = "decode_failed"
	reasonEncodeFailed  = "encode_failed"
	reasonWriteFailed   = "write_failed"

	fieldCategories = "categories"
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

// Repository persists the journey tree in usuarios/{uid}/datos/categories.
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

// Load returns the stored tree. An absent document yields an empty tree.
func (r *Repository) Load(ctx context.Context, userID string) ([]Category, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.KindUnauthenticated, opRepositoryLoad, reasonMissingUser, errMissingUser)
	}
	current, err := r.read(ctx, opRepositoryLoad, userID)
	if err != nil {
		return nil, err
	}
	return current, nil
}

// SaveCategories upserts the given categories by name into the stored tree
// and merge-writes the result. Categories not listed are left untouched.
func (r *Repository) SaveCategories(ctx context.Context, userID string, categories []Category) error {
	if userID == "" {
		return apperrors.New(apperrors.KindUnauthenticated, opRepositorySave, reasonMissingUser, errMissingUser)
	}
	if err := validateTree(categories); err != nil {
		return apperrors.Validation(opRepositorySave, reasonInvalidTree, err)
	}
	current, err := r.read(ctx, opRepositorySave, userID)
	if err != nil {
		return err
	}
	for _, category := range categories {
		if index := indexOfCategory(current, category.Name); index >= 0 {
			current[index] = category.Clone()
			continue
		}
		current = append(current, category.Clone())
	}
	data, err := docstore.Encode(categoriesDocument{Categories: current})
	if err != nil {
		return apperrors.New(apperrors.KindInternal, opRepositorySave, reasonEncodeFailed, err)
	}
	if err := r.client.Set(ctx, docstore.UserCategories(userID), data, docstore.SetOptions{Merge: true}); err != nil {
		r.logError(opRepositorySave, reasonWriteFailed, err, zap.String("user_id", userID))
		return apperrors.Persistence(opRepositorySave, reasonWriteFailed, err)
	}
	return nil
}

func (r *Repository) read(ctx context.Context, operation, userID string) ([]Category, error) {
	snapshot, err := r.client.Get(ctx, docstore.UserCategories(userID))
	if err != nil {
		r.logError(operation, reasonReadFailed, err, zap.String("user_id", userID))
		return nil, apperrors.Persistence(operation, reasonReadFailed, err)
	}
	if !snapshot.Exists {
		return []Category{}, nil
	}
	var document categoriesDocument
	if err := docstore.Decode(snapshot.Data, &document); err != nil {
		r.logError(operation, reasonDecodeFailed, err, zap.String("user_id", userID))
		return nil, apperrors.Persistence(operation, reasonDecodeFailed, err)
	}
	return cloneCategories(document.Categories), nil
}

func validateTree(categories []Category) error {
	for _, category := range categories {
		if strings.TrimSpace(category.Name) == "" {
			return errors.New("category name is required")
		}
		for _, pilar := range category.Pilars {
			if strings.TrimSpace(pilar.Name) == "" {
				return fmt.Errorf("pilar name is required in category %s", category.Name)
			}
		}
	}
	return nil
}

func (r *Repository) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	r.logger.Error("journey repository error", append(attrs, fields...)...)
}
