package declarations

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/dividis/backend/internal/docstore"
	"go.uber.org/zap"
)

const (
	opSharingNew   = "declarations.sharing.new"
	opRecordShared = "declarations.sharing.record"
	opRemoveShared = "declarations.sharing.remove"
	opListShared   = "declarations.sharing.list"
	opForgetShared = "declarations.sharing.forget"

	reasonMissingUser = "missing_user"
)

var errMissingUser = errors.New("user id is required")

type sharedDocument struct {
	DeclaracionesCompartidas []Declaration `json:"declaracionesCompartidas"`
}

// SharingServiceConfig describes the dependencies of a SharingService.
type SharingServiceConfig struct {
	Client docstore.Client
	Logger *zap.Logger
}

// SharingService keeps the per-user record of shared declarations in
// usuarios/{uid}/datos/viaje.
type SharingService struct {
	client docstore.Client
	logger *zap.Logger
}

// NewSharingService validates the configuration.
func NewSharingService(cfg SharingServiceConfig) (*SharingService, error) {
	if cfg.Client == nil {
		return nil, apperrors.New(apperrors.KindInternal, opSharingNew, reasonMissingClient, errMissingClient)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &SharingService{client: cfg.Client, logger: logger}, nil
}

// RecordShared appends d, tagged as shared, unless the record already has it.
func (s *SharingService) RecordShared(ctx context.Context, userID string, d Declaration) error {
	entries, err := s.read(ctx, opRecordShared, userID)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(entries, func(entry Declaration) bool { return entry.ID == d.ID }) {
		return nil
	}
	shared := d.Clone()
	shared.EsCompartida = true
	return s.write(ctx, opRecordShared, userID, append(entries, shared))
}

// RemoveShared drops the entry with id. A missing record is a no-op.
func (s *SharingService) RemoveShared(ctx context.Context, userID, id string) error {
	entries, err := s.read(ctx, opRemoveShared, userID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	before := len(entries)
	remaining := slices.DeleteFunc(entries, func(entry Declaration) bool { return entry.ID == id })
	if len(remaining) == before {
		return nil
	}
	return s.write(ctx, opRemoveShared, userID, remaining)
}

// SharedDeclarations lists the record of userID.
func (s *SharingService) SharedDeclarations(ctx context.Context, userID string) ([]Declaration, error) {
	return s.read(ctx, opListShared, userID)
}

// IsSharedByUser reports whether the record of userID holds id.
func (s *SharingService) IsSharedByUser(ctx context.Context, id, userID string) (bool, error) {
	entries, err := s.read(ctx, opListShared, userID)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(entries, func(entry Declaration) bool { return entry.ID == id }), nil
}

// ForgetDeclaration removes d from the record of every user who shared it.
// Every sharer is attempted and the failures are joined.
func (s *SharingService) ForgetDeclaration(ctx context.Context, d Declaration) error {
	var failures []error
	for _, userID := range d.UsuariosCompartieron {
		if err := s.RemoveShared(ctx, userID, d.ID); err != nil {
			s.logger.Warn("shared record desync failed",
				zap.String("operation", opForgetShared),
				zap.String("user_id", userID),
				zap.String("declaration_id", d.ID),
				zap.Error(err))
			failures = append(failures, err)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return apperrors.Persistence(opForgetShared, reasonWriteFailed, errors.Join(failures...))
}

func (s *SharingService) read(ctx context.Context, operation, userID string) ([]Declaration, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.New(apperrors.KindUnauthenticated, operation, reasonMissingUser, errMissingUser)
	}
	snapshot, err := s.client.Get(ctx, docstore.UserJourney(userID))
	if err != nil {
		s.logError(operation, reasonReadFailed, err, userID)
		return nil, apperrors.Persistence(operation, reasonReadFailed, err)
	}
	if !snapshot.Exists {
		return nil, nil
	}
	var document sharedDocument
	if err := docstore.Decode(snapshot.Data, &document); err != nil {
		s.logError(operation, reasonDecodeFailed, err, userID)
		return nil, apperrors.Persistence(operation, reasonDecodeFailed, err)
	}
	return document.DeclaracionesCompartidas, nil
}

func (s *SharingService) write(ctx context.Context, operation, userID string, entries []Declaration) error {
	if entries == nil {
		entries = []Declaration{}
	}
	data, err := docstore.Encode(sharedDocument{DeclaracionesCompartidas: entries})
	if err != nil {
		return apperrors.New(apperrors.KindInternal, operation, reasonEncodeFailed, err)
	}
	if err := s.client.Set(ctx, docstore.UserJourney(userID), data, docstore.SetOptions{Merge: true}); err != nil {
		s.logError(operation, reasonWriteFailed, err, userID)
		return apperrors.Persistence(operation, reasonWriteFailed, err)
	}
	return nil
}

func (s *SharingService) logError(operation, reason string, err error, userID string) {
	s.logger.Error("sharing service error",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("user_id", userID),
		zap.Error(err))
}
