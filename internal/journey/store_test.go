package journey

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/dividis/backend/internal/docstore"
	"github.com/dividis/backend/internal/docstore/docstoretest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubProgress struct {
	mu         sync.Mutex
	loads      int
	experience []int
	unlocks    []string
	levelUps   int
	err        error
}

func (p *stubProgress) Load(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	return p.err
}

func (p *stubProgress) AddExperience(_ context.Context, amount int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.experience = append(p.experience, amount)
	return p.levelUps, p.err
}

func (p *stubProgress) UnlockPilar(_ context.Context, category, completedPilar string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlocks = append(p.unlocks, category+"-"+completedPilar)
	return p.err
}

type storeFixture struct {
	store    *Store
	client   *docstoretest.FaultyClient
	progress *stubProgress
	logs     *observer.ObservedLogs
}

func newStoreFixture(t *testing.T, seed bool) storeFixture {
	t.Helper()
	client := docstoretest.NewFaultyClient(docstoretest.NewService(t))
	repository, err := NewRepository(RepositoryConfig{Client: client})
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}
	core, logs := observer.New(zapcore.WarnLevel)
	progress := &stubProgress{}
	store, err := NewStore(StoreConfig{
		UserID:       "user-1",
		Repository:   repository,
		Progress:     progress,
		SeedDefaults: seed,
		Logger:       zap.New(core),
	})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return storeFixture{store: store, client: client, progress: progress, logs: logs}
}

func sentencesOf(t *testing.T, store *Store, category, pilar string) []string {
	t.Helper()
	node, ok := store.Category(category)
	if !ok {
		t.Fatalf("expected category %s", category)
	}
	target := node.pilar(pilar)
	if target == nil {
		t.Fatalf("expected pilar %s in %s", pilar, category)
	}
	return target.Sentences
}

func TestAddSentenceDeduplicates(t *testing.T) {
	fixture := newStoreFixture(t, false)
	ctx := context.Background()

	first, err := fixture.store.AddSentence(ctx, "Salud", "Vision", "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := fixture.store.AddSentence(ctx, "Salud", "Vision", "  x  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !first.Added || second.Added {
		t.Fatalf("expected only the first add to report Added, got %v and %v", first, second)
	}
	if got := sentencesOf(t, fixture.store, "Salud", "Vision"); !slices.Equal(got, []string{"x"}) {
		t.Fatalf("expected exactly one sentence, got %v", got)
	}
	if len(fixture.progress.experience) != 1 || fixture.progress.experience[0] != DefaultExperiencePerSentence {
		t.Fatalf("expected one experience grant, got %v", fixture.progress.experience)
	}
	if !slices.Equal(fixture.progress.unlocks, []string{"Salud-Vision"}) {
		t.Fatalf("unexpected unlocks %v", fixture.progress.unlocks)
	}
	if first.Recognition != "¡Gran trabajo en tu visión de salud!" {
		t.Fatalf("unexpected recognition %q", first.Recognition)
	}
}

func TestAddSentenceAutoCreatesCategoryWithDefaultPilars(t *testing.T) {
	fixture := newStoreFixture(t, false)

	if _, err := fixture.store.AddSentence(context.Background(), "Carrera", "Proposito", "crecer"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	node, ok := fixture.store.Category("Carrera")
	if !ok {
		t.Fatalf("expected category to be created")
	}
	names := make([]string, 0, len(node.Pilars))
	for _, pilar := range node.Pilars {
		names = append(names, pilar.Name)
	}
	if !slices.Equal(names, []string{"Vision", "Proposito", "Creencias", "Estrategias"}) {
		t.Fatalf("unexpected pilars %v", names)
	}
	if fixture.store.PendingChanges() != 1 {
		t.Fatalf("expected category to be dirty")
	}
}

func TestAddSentenceValidatesInput(t *testing.T) {
	fixture := newStoreFixture(t, false)
	testCases := []struct {
		name     string
		category string
		pilar    string
		sentence string
	}{
		{name: "empty sentence", category: "Salud", pilar: "Vision", sentence: "   "},
		{name: "missing category", category: "", pilar: "Vision", sentence: "x"},
		{name: "missing pilar", category: "Salud", pilar: " ", sentence: "x"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := fixture.store.AddSentence(context.Background(), testCase.category, testCase.pilar, testCase.sentence)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	if len(fixture.store.Categories()) != 0 {
		t.Fatalf("expected no state change")
	}
}

func TestAddSentenceLogsProgressFailures(t *testing.T) {
	fixture := newStoreFixture(t, false)
	fixture.progress.err = errors.New("progress offline")

	result, err := fixture.store.AddSentence(context.Background(), "Salud", "Vision", "x")
	if err != nil {
		t.Fatalf("expected progression failure to be swallowed, got %v", err)
	}
	if !result.Added {
		t.Fatalf("expected sentence to be added")
	}
	if fixture.logs.FilterMessage("experience grant failed").Len() != 1 {
		t.Fatalf("expected experience failure to be logged")
	}
	if fixture.logs.FilterMessage("pilar unlock failed").Len() != 1 {
		t.Fatalf("expected unlock failure to be logged")
	}
}

func TestEditAndDeleteSentence(t *testing.T) {
	fixture := newStoreFixture(t, false)
	ctx := context.Background()
	for _, sentence := range []string{"a", "b", "c"} {
		if _, err := fixture.store.AddSentence(ctx, "Salud", "Vision", sentence); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	if err := fixture.store.EditSentence("Salud", "Vision", 1, " B "); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if err := fixture.store.DeleteSentence("Salud", "Vision", 0); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got := sentencesOf(t, fixture.store, "Salud", "Vision"); !slices.Equal(got, []string{"B", "c"}) {
		t.Fatalf("unexpected sentences %v", got)
	}

	testCases := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{name: "edit out of range", run: func() error { return fixture.store.EditSentence("Salud", "Vision", 2, "z") }, wantErr: apperrors.ErrValidation},
		{name: "delete negative index", run: func() error { return fixture.store.DeleteSentence("Salud", "Vision", -1) }, wantErr: apperrors.ErrValidation},
		{name: "edit empty", run: func() error { return fixture.store.EditSentence("Salud", "Vision", 0, " ") }, wantErr: apperrors.ErrValidation},
		{name: "missing category", run: func() error { return fixture.store.DeleteSentence("Finanzas", "Vision", 0) }, wantErr: apperrors.ErrNotFound},
		{name: "missing pilar", run: func() error { return fixture.store.EditSentence("Salud", "Mision", 0, "z") }, wantErr: apperrors.ErrNotFound},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if err := testCase.run(); !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestAddCategoryRejectsDuplicates(t *testing.T) {
	fixture := newStoreFixture(t, false)
	if err := fixture.store.AddCategory("Viajes", Pilar{Name: "Vision", Sentences: []string{"ver el mundo"}}); err != nil {
		t.Fatalf("add category failed: %v", err)
	}
	if got := sentencesOf(t, fixture.store, "Viajes", "Vision"); !slices.Equal(got, []string{"ver el mundo"}) {
		t.Fatalf("expected initial sentences to be copied, got %v", got)
	}
	err := fixture.store.AddCategory("Viajes", Pilar{Name: "Vision"})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFlushWritesOnlyDirtyCategoriesAndMerges(t *testing.T) {
	fixture := newStoreFixture(t, false)
	ctx := context.Background()
	ref := docstore.UserCategories("user-1")
	seed := docstore.Data{"categories": []any{
		map[string]any{"name": "Relaciones", "pilars": []any{map[string]any{"name": "Vision", "sentences": []any{"remota"}}}},
	}}
	if err := fixture.client.Set(ctx, ref, seed, docstore.SetOptions{}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := fixture.store.AddSentence(ctx, "Salud", "Vision", "local"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := fixture.store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if fixture.store.PendingChanges() != 0 {
		t.Fatalf("expected dirty set to be cleared")
	}

	repository, _ := NewRepository(RepositoryConfig{Client: fixture.client})
	stored, err := repository.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	names := make([]string, 0, len(stored))
	for _, category := range stored {
		names = append(names, category.Name)
	}
	if !slices.Equal(names, []string{"Relaciones", "Salud"}) {
		t.Fatalf("expected untouched remote category to survive, got %v", names)
	}

	writes := fixture.client.Calls(docstoretest.OpSet)
	if err := fixture.store.Flush(ctx); err != nil {
		t.Fatalf("empty flush failed: %v", err)
	}
	if fixture.client.Calls(docstoretest.OpSet) != writes {
		t.Fatalf("expected clean flush to skip the write")
	}
}

func TestFlushFailureKeepsDirtySet(t *testing.T) {
	fixture := newStoreFixture(t, false)
	ctx := context.Background()
	if _, err := fixture.store.AddSentence(ctx, "Salud", "Vision", "a"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	fixture.client.Fail(docstoretest.OpSet, errors.New("offline"))

	err := fixture.store.Flush(ctx)
	if !errors.Is(err, apperrors.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if _, err := fixture.store.AddSentence(ctx, "Intelecto", "Vision", "b"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if fixture.store.PendingChanges() != 2 {
		t.Fatalf("expected failed and new categories to stay pending, got %d", fixture.store.PendingChanges())
	}

	fixture.client.Clear(docstoretest.OpSet)
	if err := fixture.store.Flush(ctx); err != nil {
		t.Fatalf("retry flush failed: %v", err)
	}
	if fixture.store.PendingChanges() != 0 {
		t.Fatalf("expected retry to clear the dirty set")
	}
}

type blockingSetClient struct {
	docstore.Client
	entered chan struct{}
	release chan struct{}
}

func (c *blockingSetClient) Set(ctx context.Context, ref docstore.Ref, data docstore.Data, opts docstore.SetOptions) error {
	if c.entered != nil {
		close(c.entered)
		<-c.release
	}
	return c.Client.Set(ctx, ref, data, opts)
}

func TestFlushKeepsCategoriesEditedDuringTheWrite(t *testing.T) {
	ctx := context.Background()
	client := &blockingSetClient{Client: docstoretest.NewService(t)}
	repository, err := NewRepository(RepositoryConfig{Client: client})
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}
	store, err := NewStore(StoreConfig{UserID: "user-1", Repository: repository, Progress: &stubProgress{}})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	if _, err := store.AddSentence(ctx, "Salud", "Vision", "antes"); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	client.entered = make(chan struct{})
	client.release = make(chan struct{})
	flushed := make(chan error, 1)
	go func() {
		flushed <- store.Flush(ctx)
	}()

	<-client.entered
	client.entered = nil
	if err := store.EditSentence("Salud", "Vision", 0, "durante"); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	close(client.release)
	if err := <-flushed; err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if store.PendingChanges() != 1 {
		t.Fatalf("expected the category edited mid-flush to stay pending, got %d", store.PendingChanges())
	}

	stored, err := repository.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := stored[0].pilar("Vision").Sentences; !slices.Equal(got, []string{"antes"}) {
		t.Fatalf("expected the in-flight snapshot to be stored, got %v", got)
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("second flush failed: %v", err)
	}
	if store.PendingChanges() != 0 {
		t.Fatalf("expected the second flush to clear the edit")
	}
	stored, err = repository.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := stored[0].pilar("Vision").Sentences; !slices.Equal(got, []string{"durante"}) {
		t.Fatalf("expected the edit to be stored, got %v", got)
	}
}

func TestLoadInitialIsIdempotentAndSeedsDefaults(t *testing.T) {
	fixture := newStoreFixture(t, true)
	ctx := context.Background()

	if err := fixture.store.LoadInitial(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := fixture.store.LoadInitial(ctx); err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if fixture.progress.loads != 1 {
		t.Fatalf("expected progression to load once, got %d", fixture.progress.loads)
	}
	if len(fixture.store.Categories()) != 8 {
		t.Fatalf("expected eight default categories, got %d", len(fixture.store.Categories()))
	}
	if fixture.store.PendingChanges() != 0 {
		t.Fatalf("expected defaults to be flushed")
	}
	if fixture.client.Calls(docstoretest.OpGet) != 2 {
		t.Fatalf("expected one tree read and one flush read, got %d", fixture.client.Calls(docstoretest.OpGet))
	}
}

func TestLoadInitialStopsWhenProgressFails(t *testing.T) {
	fixture := newStoreFixture(t, false)
	fixture.progress.err = errors.New("offline")

	if err := fixture.store.LoadInitial(context.Background()); err == nil {
		t.Fatalf("expected progression failure to surface")
	}
	if fixture.store.Loaded() {
		t.Fatalf("expected store to stay unloaded")
	}
	if fixture.client.Calls(docstoretest.OpGet) != 0 {
		t.Fatalf("expected tree load to wait for progression")
	}
}
