// Package declarations holds the public declaration feed: its partitioned
// persistence, the optimistic store that mutates it, and the per-user record
// of shared declarations.
package declarations

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/dividis/backend/internal/optimistic"
	"go.uber.org/zap"
)

const (
	opStoreNew          = "declarations.store.new"
	opLoad              = "declarations.load"
	opCreate            = "declarations.create"
	opUpdate            = "declarations.update"
	opDelete            = "declarations.delete"
	opTransferOwnership = "declarations.transfer"
	opReact             = "declarations.react"
	opShare             = "declarations.share"
	opUnshare           = "declarations.unshare"

	reasonMissingRepository = "missing_repository"
	reasonMissingSharing    = "missing_sharing"
	reasonEmptyText         = "empty_text"
	reasonMissingCategory   = "missing_category"
	reasonMissingPilar      = "missing_pilar"
	reasonUnknownReaction   = "unknown_reaction"
	reasonNotCreator        = "not_creator"
	reasonMissingOwner      = "missing_owner"
	reasonOwnerUnknown      = "owner_not_found"
	reasonSameOwner         = "same_owner"
	reasonJourneyFailed     = "journey_failed"
)

var (
	errMissingRepository = errors.New("declaration repository is required")
	errMissingSharing    = errors.New("sharing service is required")
	errEmptyText         = errors.New("texto must not be empty")
	errMissingCategory   = errors.New("categoria is required")
	errMissingPilar      = errors.New("pilar is required")
	errNotCreator        = errors.New("only the creator may change this declaration")
	errMissingOwner      = errors.New("new owner id is required")
	errOwnerUnknown      = errors.New("new owner does not exist")
	errSameOwner         = errors.New("declaration already belongs to this user")
)

// JourneySink receives the sentence a user adopts by sharing a declaration.
type JourneySink interface {
	AppendSharedSentence(ctx context.Context, userID, categoria, pilar, texto string) error
}

// OwnerDirectory answers whether a user id is known.
type OwnerDirectory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// ChangeKind names a committed mutation.
type ChangeKind string

const (
	ChangeCreated     ChangeKind = "created"
	ChangeUpdated     ChangeKind = "updated"
	ChangeDeleted     ChangeKind = "deleted"
	ChangeTransferred ChangeKind = "transferred"
	ChangeReacted     ChangeKind = "reacted"
	ChangeShared      ChangeKind = "shared"
	ChangeUnshared    ChangeKind = "unshared"
)

// Change describes one committed mutation.
type Change struct {
	Kind        ChangeKind  `json:"kind"`
	ActorID     string      `json:"actorId"`
	Declaration Declaration `json:"declaration"`
}

// ChangePublisher fans committed changes out to subscribers.
type ChangePublisher interface {
	PublishDeclarationChange(change Change)
}

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Repository *Repository
	Sharing    *SharingService
	Journey    JourneySink
	Owners     OwnerDirectory
	Publisher  ChangePublisher
	Runner     *optimistic.Runner
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Store is the in-memory public feed. Local state changes before the remote
// write; failed writes are reverted exactly or reconciled by a full reload.
type Store struct {
	repository *Repository
	sharing    *SharingService
	journey    JourneySink
	owners     OwnerDirectory
	publisher  ChangePublisher
	runner     *optimistic.Runner
	clock      func() time.Time
	logger     *zap.Logger

	mu      sync.RWMutex
	entries []Declaration
	loaded  bool
}

// NewStore validates the configuration and returns an empty Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Repository == nil {
		return nil, apperrors.New(apperrors.KindInternal, opStoreNew, reasonMissingRepository, errMissingRepository)
	}
	if cfg.Sharing == nil {
		return nil, apperrors.New(apperrors.KindInternal, opStoreNew, reasonMissingSharing, errMissingSharing)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	runner := cfg.Runner
	if runner == nil {
		runner = optimistic.NewRunner(optimistic.RunnerConfig{Logger: logger})
	}
	return &Store{
		repository: cfg.Repository,
		sharing:    cfg.Sharing,
		journey:    cfg.Journey,
		owners:     cfg.Owners,
		publisher:  cfg.Publisher,
		runner:     runner,
		clock:      clock,
		logger:     logger,
		entries:    []Declaration{},
	}, nil
}

// Load replaces local state with the stored feed.
func (s *Store) Load(ctx context.Context) error {
	entries, err := s.repository.LoadAll(ctx)
	if err != nil {
		s.logger.Warn("declaration load failed", zap.String("operation", opLoad), zap.Error(err))
		return err
	}
	s.mu.Lock()
	s.entries = entries
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Loaded reports whether Load succeeded at least once.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// List returns a copy of the feed in display order.
func (s *Store) List() []Declaration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.entries)
}

// Page returns up to limit entries starting at offset and the total count.
func (s *Store) Page(offset, limit int) ([]Declaration, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.entries)
	offset = min(max(offset, 0), total)
	end := total
	if limit > 0 {
		end = min(offset+limit, total)
	}
	return cloneAll(s.entries[offset:end]), total
}

// Get returns a copy of the entry with id.
func (s *Store) Get(id string) (Declaration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index := s.indexLocked(id)
	if index < 0 {
		return Declaration{}, false
	}
	return s.entries[index].Clone(), true
}

// Create validates draft, prepends the new declaration locally and persists
// it. A failed write removes exactly the new entry.
func (s *Store) Create(ctx context.Context, creatorID string, draft Draft) (Declaration, error) {
	if strings.TrimSpace(creatorID) == "" {
		return Declaration{}, apperrors.New(apperrors.KindUnauthenticated, opCreate, reasonMissingUser, errMissingUser)
	}
	draft = Draft{
		Texto:     strings.TrimSpace(draft.Texto),
		Categoria: strings.TrimSpace(draft.Categoria),
		Pilar:     strings.TrimSpace(draft.Pilar),
	}
	if err := validateDraft(opCreate, draft); err != nil {
		return Declaration{}, err
	}

	var created Declaration
	err := s.runner.Execute(ctx, optimistic.Command{
		Name: opCreate,
		Apply: func() error {
			s.mu.Lock()
			defer s.mu.Unlock()
			created = Declaration{
				ID:                   s.uniqueIDLocked(draft.Categoria, draft.Pilar),
				Texto:                draft.Texto,
				Categoria:            draft.Categoria,
				Pilar:                draft.Pilar,
				CreadorID:            creatorID,
				UsuariosReaccionaron: []string{},
				UsuariosReaccionTipo: map[string]ReactionKind{},
				UsuariosCompartieron: []string{},
				EsPublica:            true,
			}
			s.entries = slices.Insert(s.entries, 0, created.Clone())
			return nil
		},
		Commit: func(ctx context.Context) error {
			return s.repository.Prepend(ctx, created)
		},
		Revert: func() {
			s.removeLocal(created.ID)
		},
	})
	if err != nil {
		return Declaration{}, err
	}
	s.publish(ChangeCreated, creatorID, created)
	return created.Clone(), nil
}

// Update rewrites the text of declaration id owned by actorID. The text is
// applied to the current entry so concurrent reactions and shares survive.
// A failed write reloads the feed.
func (s *Store) Update(ctx context.Context, actorID, id, texto string) (Declaration, error) {
	texto = strings.TrimSpace(texto)
	if texto == "" {
		return Declaration{}, apperrors.Validation(opUpdate, reasonEmptyText, errEmptyText)
	}
	var updated Declaration
	err := s.runner.Execute(ctx, optimistic.Command{
		Name: opUpdate,
		Apply: func() error {
			s.mu.Lock()
			defer s.mu.Unlock()
			index, err := s.ownedIndexLocked(opUpdate, actorID, id)
			if err != nil {
				return err
			}
			s.entries[index].Texto = texto
			updated = s.entries[index].Clone()
			return nil
		},
		Commit: func(ctx context.Context) error {
			return s.repository.Replace(ctx, updated)
		},
		Reconcile: s.Load,
	})
	if err != nil {
		return Declaration{}, err
	}
	s.publish(ChangeUpdated, actorID, updated)
	return updated.Clone(), nil
}

// Delete removes a declaration owned by actorID and clears it from the shared
// record of every sharer. Any failure reloads the feed.
func (s *Store) Delete(ctx context.Context, actorID, id string) error {
	var removed Declaration
	err := s.runner.Execute(ctx, optimistic.Command{
		Name: opDelete,
		Apply: func() error {
			s.mu.Lock()
			defer s.mu.Unlock()
			index, err := s.ownedIndexLocked(opDelete, actorID, id)
			if err != nil {
				return err
			}
			removed = s.entries[index].Clone()
			s.entries = slices.Delete(s.entries, index, index+1)
			return nil
		},
		Commit: func(ctx context.Context) error {
			if err := s.repository.Remove(ctx, removed.ID, removed.Categoria, removed.Pilar); err != nil {
				return err
			}
			return s.sharing.ForgetDeclaration(ctx, removed)
		},
		Reconcile: s.Load,
	})
	if err != nil {
		return err
	}
	s.publish(ChangeDeleted, actorID, removed)
	return nil
}

// TransferOwnership hands a declaration owned by actorID to newOwnerID. The
// remote write happens first; local state follows on success and is
// reloaded on failure.
func (s *Store) TransferOwnership(ctx context.Context, actorID, id, newOwnerID string) (Declaration, error) {
	newOwnerID = strings.TrimSpace(newOwnerID)
	if newOwnerID == "" {
		return Declaration{}, apperrors.Validation(opTransferOwnership, reasonMissingOwner, errMissingOwner)
	}
	s.mu.RLock()
	index, err := s.ownedIndexLocked(opTransferOwnership, actorID, id)
	var current Declaration
	if err == nil {
		current = s.entries[index].Clone()
	}
	s.mu.RUnlock()
	if err != nil {
		return Declaration{}, err
	}
	if current.CreadorID == newOwnerID {
		return Declaration{}, apperrors.Validation(opTransferOwnership, reasonSameOwner, errSameOwner)
	}
	if s.owners != nil {
		exists, err := s.owners.UserExists(ctx, newOwnerID)
		if err != nil {
			return Declaration{}, err
		}
		if !exists {
			return Declaration{}, apperrors.NotFound(opTransferOwnership, reasonOwnerUnknown, errOwnerUnknown)
		}
	}

	var transferred Declaration
	err = s.runner.Execute(ctx, optimistic.Command{
		Name: opTransferOwnership,
		Commit: func(ctx context.Context) error {
			stored, err := s.repository.Transfer(ctx, current.ID, newOwnerID, current.Categoria, current.Pilar)
			if err != nil {
				return err
			}
			transferred = stored
			s.mu.Lock()
			if position := s.indexLocked(current.ID); position >= 0 {
				s.entries[position].CreadorID = newOwnerID
				transferred = s.entries[position].Clone()
			}
			s.mu.Unlock()
			return nil
		},
		Reconcile: s.Load,
	})
	if err != nil {
		return Declaration{}, err
	}
	s.publish(ChangeTransferred, actorID, transferred)
	return transferred, nil
}

// React toggles, switches or adds the reaction of userID with exactly one
// remote write. A failed write restores the prior entry.
func (s *Store) React(ctx context.Context, id, userID string, kind ReactionKind) (Declaration, error) {
	if strings.TrimSpace(userID) == "" {
		return Declaration{}, apperrors.New(apperrors.KindUnauthenticated, opReact, reasonMissingUser, errMissingUser)
	}
	if _, err := ParseReactionKind(string(kind)); err != nil {
		return Declaration{}, apperrors.Validation(opReact, reasonUnknownReaction, err)
	}
	var prior, next Declaration
	err := s.runner.Execute(ctx, optimistic.Command{
		Name: opReact,
		Apply: func() error {
			return s.mutateLocal(opReact, id, &prior, &next, func(entry *Declaration) error {
				entry.applyReaction(userID, kind)
				return nil
			})
		},
		Commit: func(ctx context.Context) error {
			return s.repository.Replace(ctx, next)
		},
		Revert: func() { s.restoreLocal(prior) },
	})
	if err != nil {
		return Declaration{}, err
	}
	s.publish(ChangeReacted, userID, next)
	return next.Clone(), nil
}

// Share records that userID shared the declaration: the counter and sharer
// list are updated and persisted, the declaration is appended to the user's
// shared record and its text becomes a sentence of the user's journey.
// Sharing one's own declaration or sharing twice changes nothing. Any failure
// restores the prior entry.
func (s *Store) Share(ctx context.Context, id, userID string) (Declaration, error) {
	if strings.TrimSpace(userID) == "" {
		return Declaration{}, apperrors.New(apperrors.KindUnauthenticated, opShare, reasonMissingUser, errMissingUser)
	}
	var prior, next Declaration
	skipped := false
	err := s.runner.Execute(ctx, optimistic.Command{
		Name: opShare,
		Apply: func() error {
			return s.mutateLocal(opShare, id, &prior, &next, func(entry *Declaration) error {
				if entry.CreadorID == userID || entry.SharedBy(userID) {
					s.logger.Info("share ignored",
						zap.String("declaration_id", id),
						zap.String("user_id", userID),
						zap.Bool("own_declaration", entry.CreadorID == userID))
					skipped = true
					return optimistic.ErrSkip
				}
				entry.applyShare(userID)
				return nil
			})
		},
		Commit: func(ctx context.Context) error {
			if err := s.repository.Replace(ctx, next); err != nil {
				return err
			}
			if err := s.sharing.RecordShared(ctx, userID, next); err != nil {
				return err
			}
			if s.journey == nil {
				return nil
			}
			if err := s.journey.AppendSharedSentence(ctx, userID, next.Categoria, next.Pilar, next.Texto); err != nil {
				var classified *apperrors.Error
				if errors.As(err, &classified) {
					return err
				}
				return apperrors.Persistence(opShare, reasonJourneyFailed, err)
			}
			return nil
		},
		Revert: func() { s.restoreLocal(prior) },
	})
	if err != nil {
		return Declaration{}, err
	}
	if skipped {
		return prior, nil
	}
	s.publish(ChangeShared, userID, next)
	return next.Clone(), nil
}

// Unshare reverses Share. The counter never drops below zero. Unsharing a
// declaration the user never shared changes nothing.
func (s *Store) Unshare(ctx context.Context, id, userID string) (Declaration, error) {
	if strings.TrimSpace(userID) == "" {
		return Declaration{}, apperrors.New(apperrors.KindUnauthenticated, opUnshare, reasonMissingUser, errMissingUser)
	}
	var prior, next Declaration
	skipped := false
	err := s.runner.Execute(ctx, optimistic.Command{
		Name: opUnshare,
		Apply: func() error {
			return s.mutateLocal(opUnshare, id, &prior, &next, func(entry *Declaration) error {
				if !entry.SharedBy(userID) {
					skipped = true
					return optimistic.ErrSkip
				}
				entry.applyUnshare(userID)
				return nil
			})
		},
		Commit: func(ctx context.Context) error {
			if err := s.repository.Replace(ctx, next); err != nil {
				return err
			}
			return s.sharing.RemoveShared(ctx, userID, next.ID)
		},
		Revert: func() { s.restoreLocal(prior) },
	})
	if err != nil {
		return Declaration{}, err
	}
	if skipped {
		return prior, nil
	}
	s.publish(ChangeUnshared, userID, next)
	return next.Clone(), nil
}

// mutateLocal applies mutate to the entry with id under the lock and captures
// copies of the entry before and after.
func (s *Store) mutateLocal(operation, id string, prior, next *Declaration, mutate func(*Declaration) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexLocked(id)
	if index < 0 {
		return apperrors.NotFound(operation, reasonDeclarationAbsent, errDeclarationAbsent)
	}
	*prior = s.entries[index].Clone()
	entry := s.entries[index].Clone()
	if err := mutate(&entry); err != nil {
		return err
	}
	s.entries[index] = entry
	*next = entry.Clone()
	return nil
}

func (s *Store) restoreLocal(prior Declaration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index := s.indexLocked(prior.ID); index >= 0 {
		s.entries[index] = prior.Clone()
	}
}

func (s *Store) removeLocal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index := s.indexLocked(id); index >= 0 {
		s.entries = slices.Delete(s.entries, index, index+1)
	}
}

func (s *Store) ownedIndexLocked(operation, actorID, id string) (int, error) {
	if strings.TrimSpace(actorID) == "" {
		return -1, apperrors.New(apperrors.KindUnauthenticated, operation, reasonMissingUser, errMissingUser)
	}
	index := s.indexLocked(id)
	if index < 0 {
		return -1, apperrors.NotFound(operation, reasonDeclarationAbsent, errDeclarationAbsent)
	}
	if s.entries[index].CreadorID != actorID {
		return -1, apperrors.New(apperrors.KindForbidden, operation, reasonNotCreator, errNotCreator)
	}
	return index, nil
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.entries, func(entry Declaration) bool { return entry.ID == id })
}

// uniqueIDLocked derives the id from the clock, moving forward one
// millisecond while it collides with a local entry.
func (s *Store) uniqueIDLocked(categoria, pilar string) string {
	at := s.clock()
	id := NewDeclarationID(categoria, pilar, at)
	for s.indexLocked(id) >= 0 {
		at = at.Add(time.Millisecond)
		id = NewDeclarationID(categoria, pilar, at)
	}
	return id
}

func (s *Store) publish(kind ChangeKind, actorID string, d Declaration) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishDeclarationChange(Change{Kind: kind, ActorID: actorID, Declaration: d.Clone()})
}

func validateDraft(operation string, draft Draft) error {
	if draft.Texto == "" {
		return apperrors.Validation(operation, reasonEmptyText, errEmptyText)
	}
	if draft.Categoria == "" {
		return apperrors.Validation(operation, reasonMissingCategory, errMissingCategory)
	}
	if draft.Pilar == "" {
		return apperrors.Validation(operation, reasonMissingPilar, errMissingPilar)
	}
	return nil
}

func cloneAll(entries []Declaration) []Declaration {
	cloned := make([]Declaration, 0, len(entries))
	for _, entry := range entries {
		cloned = append(cloned, entry.Clone())
	}
	return cloned
}
