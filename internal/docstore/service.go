package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dividis/backend/internal/apperrors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errInvalidRef      = errors.New("document reference requires collection and id")
	errDocumentAbsent  = errors.New("document does not exist")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew = "docstore.service.new"
	opGet        = "docstore.get"
	opSet        = "docstore.set"
	opUpdate     = "docstore.update"
	opDelete     = "docstore.delete"
	opList       = "docstore.list"

	queryCollection    = "collection = ?"
	queryCollectionDoc = "collection = ? AND document_id = ?"
	orderDocumentIDAsc = "document_id ASC"

	reasonMissingDatabase = "missing_database"
	reasonInvalidRef      = "invalid_ref"
	reasonQueryFailed     = "query_failed"
	reasonDecodeFailed    = "decode_failed"
	reasonEncodeFailed    = "encode_failed"
	reasonWriteFailed     = "write_failed"
	reasonDocumentAbsent  = "document_absent"
)

// ServiceConfig describes the dependencies of the SQL-backed document store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service stores documents as JSON rows through gorm.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

var _ Client = (*Service)(nil)

// NewService validates the configuration and returns a Service.
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
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Get reads one document. Absent documents are reported through Snapshot.Exists.
func (s *Service) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	if err := s.guard(opGet, ref); err != nil {
		return Snapshot{}, err
	}
	var row Document
	err := s.db.WithContext(ctx).Where(queryCollectionDoc, ref.Collection, ref.ID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{Ref: ref, Exists: false}, nil
	}
	if err != nil {
		s.logError(opGet, reasonQueryFailed, err, zap.String("path", ref.Path()))
		return Snapshot{}, apperrors.Persistence(opGet, reasonQueryFailed, err)
	}
	data, err := decodeRow(row)
	if err != nil {
		s.logError(opGet, reasonDecodeFailed, err, zap.String("path", ref.Path()))
		return Snapshot{}, apperrors.Persistence(opGet, reasonDecodeFailed, err)
	}
	return Snapshot{Ref: ref, Exists: true, Data: data}, nil
}

// Set writes a document, replacing it or deep-merging into it.
func (s *Service) Set(ctx context.Context, ref Ref, data Data, opts SetOptions) error {
	if err := s.guard(opSet, ref); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		next := data
		if opts.Merge {
			var existing Document
			err := tx.Where(queryCollectionDoc, ref.Collection, ref.ID).Take(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
			case err != nil:
				s.logError(opSet, reasonQueryFailed, err, zap.String("path", ref.Path()))
				return apperrors.Persistence(opSet, reasonQueryFailed, err)
			default:
				stored, decodeErr := decodeRow(existing)
				if decodeErr != nil {
					s.logError(opSet, reasonDecodeFailed, decodeErr, zap.String("path", ref.Path()))
					return apperrors.Persistence(opSet, reasonDecodeFailed, decodeErr)
				}
				next = MergeData(stored, data)
			}
		}
		return s.upsert(tx, opSet, ref, next)
	})
}

// Update replaces top-level fields of an existing document.
func (s *Service) Update(ctx context.Context, ref Ref, fields Data) error {
	if err := s.guard(opUpdate, ref); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Document
		err := tx.Where(queryCollectionDoc, ref.Collection, ref.ID).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound(opUpdate, reasonDocumentAbsent, errDocumentAbsent)
		}
		if err != nil {
			s.logError(opUpdate, reasonQueryFailed, err, zap.String("path", ref.Path()))
			return apperrors.Persistence(opUpdate, reasonQueryFailed, err)
		}
		stored, err := decodeRow(existing)
		if err != nil {
			s.logError(opUpdate, reasonDecodeFailed, err, zap.String("path", ref.Path()))
			return apperrors.Persistence(opUpdate, reasonDecodeFailed, err)
		}
		for key, value := range fields {
			stored[key] = value
		}
		return s.upsert(tx, opUpdate, ref, stored)
	})
}

// Delete removes an existing document.
func (s *Service) Delete(ctx context.Context, ref Ref) error {
	if err := s.guard(opDelete, ref); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Where(queryCollectionDoc, ref.Collection, ref.ID).Delete(&Document{})
	if result.Error != nil {
		s.logError(opDelete, reasonWriteFailed, result.Error, zap.String("path", ref.Path()))
		return apperrors.Persistence(opDelete, reasonWriteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound(opDelete, reasonDocumentAbsent, errDocumentAbsent)
	}
	return nil
}

// List returns every document of a collection ordered by document id.
func (s *Service) List(ctx context.Context, collection string) ([]Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, apperrors.New(apperrors.KindInternal, opList, reasonMissingDatabase, errMissingDatabase)
	}
	var rows []Document
	if err := s.db.WithContext(ctx).
		Where(queryCollection, collection).
		Order(orderDocumentIDAsc).
		Find(&rows).Error; err != nil {
		s.logError(opList, reasonQueryFailed, err, zap.String("collection", collection))
		return nil, apperrors.Persistence(opList, reasonQueryFailed, err)
	}
	snapshots := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		data, err := decodeRow(row)
		if err != nil {
			s.logError(opList, reasonDecodeFailed, err,
				zap.String("collection", collection),
				zap.String("document_id", row.DocumentID))
			return nil, apperrors.Persistence(opList, reasonDecodeFailed, err)
		}
		snapshots = append(snapshots, Snapshot{
			Ref:    Ref{Collection: row.Collection, ID: row.DocumentID},
			Exists: true,
			Data:   data,
		})
	}
	return snapshots, nil
}

func (s *Service) upsert(tx *gorm.DB, operation string, ref Ref, data Data) error {
	if data == nil {
		data = Data{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return apperrors.Validation(operation, reasonEncodeFailed, err)
	}
	now := s.clock().UTC().Unix()
	row := Document{
		Collection:       ref.Collection,
		DocumentID:       ref.ID,
		DataJSON:         string(payload),
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data_json", "updated_at_s"}),
	}).Create(&row).Error
	if err != nil {
		s.logError(operation, reasonWriteFailed, err, zap.String("path", ref.Path()))
		return apperrors.Persistence(operation, reasonWriteFailed, err)
	}
	return nil
}

func (s *Service) guard(operation string, ref Ref) error {
	if s == nil || s.db == nil {
		return apperrors.New(apperrors.KindInternal, operation, reasonMissingDatabase, errMissingDatabase)
	}
	if !ref.Valid() {
		return apperrors.Validation(operation, reasonInvalidRef, errInvalidRef)
	}
	return nil
}

func decodeRow(row Document) (Data, error) {
	data := Data{}
	if row.DataJSON == "" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(row.DataJSON), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	logger := noOpLogger
	if s != nil && s.logger != nil {
		logger = s.logger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("docstore error", attrs...)
}
