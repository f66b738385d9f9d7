// Package journey holds a user's personal tree of categories, pilars and
// sentences, tracks which categories changed since the last flush and grants
// progression for every new sentence.
package journey

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

// DefaultExperiencePerSentence is granted for each newly added sentence.
const DefaultExperiencePerSentence = 10

const (
	opStoreNew       = "journey.store.new"
	opAddSentence    = "journey.add_sentence"
	opEditSentence   = "journey.edit_sentence"
	opDeleteSentence = "journey.delete_sentence"
	opAddCategory    = "journey.add_category"
	opFlush          = "journey.flush"
	opLoadInitial    = "journey.load_initial"

	reasonMissingRepository = "missing_repository"
	reasonEmptySentence     = "empty_sentence"
	reasonMissingCategory   = "missing_category"
	reasonMissingPilar      = "missing_pilar"
	reasonIndexOutOfRange   = "index_out_of_range"
	reasonDuplicateCategory = "duplicate_category"
	reasonCategoryNotFound  = "category_not_found"
	reasonPilarNotFound     = "pilar_not_found"
)

var (
	errMissingRepository = errors.New("journey repository is required")
	errEmptySentence     = errors.New("sentence must not be empty")
	errMissingCategory   = errors.New("category name is required")
	errMissingPilar      = errors.New("pilar name is required")
	errIndexOutOfRange   = errors.New("sentence index out of range")
	errDuplicateCategory = errors.New("category already exists")
	errCategoryNotFound  = errors.New("category not found")
	errPilarNotFound     = errors.New("pilar not found")
)

// ProgressRecorder receives the progression side effects of new sentences.
type ProgressRecorder interface {
	Load(ctx context.Context) error
	AddExperience(ctx context.Context, amount int) (int, error)
	UnlockPilar(ctx context.Context, category, completedPilar string) error
}

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	UserID                string
	Repository            *Repository
	Progress              ProgressRecorder
	ExperiencePerSentence int
	SeedDefaults          bool
	Logger                *zap.Logger
}

// AddResult reports the outcome of AddSentence.
type AddResult struct {
	Added       bool   `json:"added"`
	Recognition string `json:"recognition,omitempty"`
	LevelUps    int    `json:"levelUps"`
}

// Store is the in-memory journey tree of one user.
type Store struct {
	userID     string
	repository *Repository
	progress   ProgressRecorder
	experience int
	seed       bool
	logger     *zap.Logger

	mu         sync.RWMutex
	categories []Category
	dirty      map[string]uint64
	generation uint64
	loaded     bool

	loadMu  sync.Mutex
	flushMu sync.Mutex
}

// NewStore validates the configuration and returns an empty, unloaded Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Repository == nil {
		return nil, apperrors.New(apperrors.KindInternal, opStoreNew, reasonMissingRepository, errMissingRepository)
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, apperrors.New(apperrors.KindUnauthenticated, opStoreNew, reasonMissingUser, errMissingUser)
	}
	experience := cfg.ExperiencePerSentence
	if experience <= 0 {
		experience = DefaultExperiencePerSentence
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		userID:     cfg.UserID,
		repository: cfg.Repository,
		progress:   cfg.Progress,
		experience: experience,
		seed:       cfg.SeedDefaults,
		logger:     logger.With(zap.String("user_id", cfg.UserID)),
		categories: []Category{},
		dirty:      make(map[string]uint64),
	}, nil
}

// LoadInitial loads progression and then the tree, once per Store. When
// seeding is enabled, missing catalog categories are added and flushed.
func (s *Store) LoadInitial(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.Loaded() {
		return nil
	}
	if s.progress != nil {
		if err := s.progress.Load(ctx); err != nil {
			return err
		}
	}
	categories, err := s.repository.Load(ctx, s.userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, local := range s.categories {
		if _, pending := s.dirty[local.Name]; !pending {
			continue
		}
		if index := indexOfCategory(categories, local.Name); index >= 0 {
			categories[index] = local
		} else {
			categories = append(categories, local)
		}
	}
	s.categories = categories
	s.loaded = true
	s.mu.Unlock()

	if s.seed && s.InitializeDefaults() {
		if err := s.Flush(ctx); err != nil {
			s.logger.Warn("default categories flush failed", zap.String("operation", opLoadInitial), zap.Error(err))
			return err
		}
	}
	return nil
}

// Loaded reports whether LoadInitial completed.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Categories returns a copy of the tree.
func (s *Store) Categories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneCategories(s.categories)
}

// Category returns a copy of one category.
func (s *Store) Category(name string) (Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index := indexOfCategory(s.categories, name)
	if index < 0 {
		return Category{}, false
	}
	return s.categories[index].Clone(), true
}

// PendingChanges reports how many categories await a flush.
func (s *Store) PendingChanges() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dirty)
}

// AddSentence appends sentence to category/pilar, creating both when absent.
// A sentence already present is not duplicated. New sentences grant
// experience and unlock the following pilar; progression failures are logged.
func (s *Store) AddSentence(ctx context.Context, category, pilar, sentence string) (AddResult, error) {
	category, pilar, sentence = strings.TrimSpace(category), strings.TrimSpace(pilar), strings.TrimSpace(sentence)
	if err := validateTarget(opAddSentence, category, pilar); err != nil {
		return AddResult{}, err
	}
	if sentence == "" {
		return AddResult{}, apperrors.Validation(opAddSentence, reasonEmptySentence, errEmptySentence)
	}

	s.mu.Lock()
	changed := false
	index := indexOfCategory(s.categories, category)
	if index < 0 {
		s.categories = append(s.categories, newCategory(category))
		index = len(s.categories) - 1
		changed = true
	}
	node := &s.categories[index]
	target := node.pilar(pilar)
	if target == nil {
		node.Pilars = append(node.Pilars, Pilar{Name: pilar, Sentences: []string{}})
		target = &node.Pilars[len(node.Pilars)-1]
		changed = true
	}
	added := !slices.Contains(target.Sentences, sentence)
	if added {
		target.Sentences = append(target.Sentences, sentence)
		changed = true
	}
	position := len(target.Sentences) - 1
	if changed {
		s.markDirtyLocked(category)
	}
	s.mu.Unlock()

	result := AddResult{Added: added}
	if !added {
		return result, nil
	}
	result.Recognition = catalog.RecognitionMessage(category, pilar, position)
	result.LevelUps = s.recordProgress(ctx, category, pilar)
	return result, nil
}

func (s *Store) recordProgress(ctx context.Context, category, pilar string) int {
	if s.progress == nil {
		return 0
	}
	levelUps, err := s.progress.AddExperience(ctx, s.experience)
	if err != nil {
		s.logger.Warn("experience grant failed",
			zap.String("operation", opAddSentence),
			zap.String("category", category),
			zap.Error(err))
	}
	if catalog.IsPilar(pilar) {
		if err := s.progress.UnlockPilar(ctx, category, pilar); err != nil {
			s.logger.Warn("pilar unlock failed",
				zap.String("operation", opAddSentence),
				zap.String("category", category),
				zap.String("pilar", pilar),
				zap.Error(err))
		}
	}
	return levelUps
}

// EditSentence replaces the sentence at index.
func (s *Store) EditSentence(category, pilar string, index int, sentence string) error {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return apperrors.Validation(opEditSentence, reasonEmptySentence, errEmptySentence)
	}
	return s.mutateSentences(opEditSentence, category, pilar, index, func(target *Pilar) {
		target.Sentences[index] = sentence
	})
}

// DeleteSentence removes the sentence at index.
func (s *Store) DeleteSentence(category, pilar string, index int) error {
	return s.mutateSentences(opDeleteSentence, category, pilar, index, func(target *Pilar) {
		target.Sentences = slices.Delete(target.Sentences, index, index+1)
	})
}

func (s *Store) mutateSentences(operation, category, pilar string, index int, mutate func(*Pilar)) error {
	category, pilar = strings.TrimSpace(category), strings.TrimSpace(pilar)
	if err := validateTarget(operation, category, pilar); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	position := indexOfCategory(s.categories, category)
	if position < 0 {
		return apperrors.NotFound(operation, reasonCategoryNotFound, errCategoryNotFound)
	}
	target := s.categories[position].pilar(pilar)
	if target == nil {
		return apperrors.NotFound(operation, reasonPilarNotFound, errPilarNotFound)
	}
	if index < 0 || index >= len(target.Sentences) {
		return apperrors.Validation(operation, reasonIndexOutOfRange, errIndexOutOfRange)
	}
	mutate(target)
	s.markDirtyLocked(category)
	return nil
}

// AddCategory creates a category with every catalog pilar. Sentences of
// initial are copied into the pilar of the same name.
func (s *Store) AddCategory(name string, initial Pilar) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.Validation(opAddCategory, reasonMissingCategory, errMissingCategory)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOfCategory(s.categories, name) >= 0 {
		return apperrors.Validation(opAddCategory, reasonDuplicateCategory, errDuplicateCategory)
	}
	s.addCategoryLocked(name, initial)
	return nil
}

func (s *Store) addCategoryLocked(name string, initial Pilar) {
	category := newCategory(name)
	if initialName := strings.TrimSpace(initial.Name); initialName != "" {
		target := category.pilar(initialName)
		if target == nil {
			category.Pilars = append(category.Pilars, Pilar{Name: initialName, Sentences: []string{}})
			target = &category.Pilars[len(category.Pilars)-1]
		}
		for _, sentence := range initial.Sentences {
			if trimmed := strings.TrimSpace(sentence); trimmed != "" && !slices.Contains(target.Sentences, trimmed) {
				target.Sentences = append(target.Sentences, trimmed)
			}
		}
	}
	s.categories = append(s.categories, category)
	s.markDirtyLocked(name)
}

// InitializeDefaults adds every catalog category the tree lacks and reports
// whether any was added.
func (s *Store) InitializeDefaults() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := false
	for _, name := range catalog.Categories() {
		if indexOfCategory(s.categories, name) >= 0 {
			continue
		}
		s.addCategoryLocked(name, Pilar{Name: catalog.PilarVision})
		added = true
	}
	return added
}

// Flush writes the categories changed since the last successful flush. A
// category changed again while the write is in flight stays pending. On
// failure every pending category is kept for the next attempt.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	if len(s.dirty) == 0 {
		s.mu.RUnlock()
		return nil
	}
	flushed := make(map[string]uint64, len(s.dirty))
	pending := make([]Category, 0, len(s.dirty))
	for _, category := range s.categories {
		generation, isDirty := s.dirty[category.Name]
		if !isDirty {
			continue
		}
		flushed[category.Name] = generation
		pending = append(pending, category.Clone())
	}
	s.mu.RUnlock()

	if err := s.repository.SaveCategories(ctx, s.userID, pending); err != nil {
		s.logger.Warn("journey flush failed",
			zap.String("operation", opFlush),
			zap.Int("pending", len(pending)),
			zap.Error(err))
		return err
	}

	s.mu.Lock()
	for name, generation := range flushed {
		if s.dirty[name] == generation {
			delete(s.dirty, name)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) markDirtyLocked(category string) {
	s.generation++
	s.dirty[category] = s.generation
}

func validateTarget(operation, category, pilar string) error {
	if category == "" {
		return apperrors.Validation(operation, reasonMissingCategory, errMissingCategory)
	}
	if pilar == "" {
		return apperrors.Validation(operation, reasonMissingPilar, errMissingPilar)
	}
	return nil
}
