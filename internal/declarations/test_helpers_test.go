package declarations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dividis/backend/internal/docstore/docstoretest"
	"github.com/dividis/backend/internal/optimistic"
)

type journeyCall struct {
	userID    string
	categoria string
	pilar     string
	texto     string
}

type stubJourney struct {
	mu    sync.Mutex
	calls []journeyCall
	err   error
}

func (j *stubJourney) AppendSharedSentence(_ context.Context, userID, categoria, pilar, texto string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, journeyCall{userID: userID, categoria: categoria, pilar: pilar, texto: texto})
	return j.err
}

type stubOwners struct {
	known map[string]bool
}

func (o stubOwners) UserExists(_ context.Context, userID string) (bool, error) {
	return o.known[userID], nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []Change
}

func (p *recordingPublisher) PublishDeclarationChange(change Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
}

func (p *recordingPublisher) kinds() []ChangeKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]ChangeKind, 0, len(p.changes))
	for _, change := range p.changes {
		kinds = append(kinds, change.Kind)
	}
	return kinds
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) ObserveCommand(command, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, command+":"+outcome)
}

type storeFixture struct {
	store      *Store
	repository *Repository
	sharing    *SharingService
	client     *docstoretest.FaultyClient
	journey    *stubJourney
	publisher  *recordingPublisher
	outcomes   *outcomeRecorder
}

func newStoreFixture(t *testing.T) storeFixture {
	t.Helper()
	client := docstoretest.NewFaultyClient(docstoretest.NewService(t))
	repository, err := NewRepository(RepositoryConfig{Client: client})
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}
	sharing, err := NewSharingService(SharingServiceConfig{Client: client})
	if err != nil {
		t.Fatalf("failed to build sharing service: %v", err)
	}
	journey := &stubJourney{}
	publisher := &recordingPublisher{}
	outcomes := &outcomeRecorder{}
	clock := time.UnixMilli(1700000000000)
	store, err := NewStore(StoreConfig{
		Repository: repository,
		Sharing:    sharing,
		Journey:    journey,
		Owners:     stubOwners{known: map[string]bool{"user-1": true, "user-2": true, "user-3": true}},
		Publisher:  publisher,
		Runner:     optimistic.NewRunner(optimistic.RunnerConfig{Recorder: outcomes}),
		Clock:      func() time.Time { return clock },
	})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return storeFixture{
		store:      store,
		repository: repository,
		sharing:    sharing,
		client:     client,
		journey:    journey,
		publisher:  publisher,
		outcomes:   outcomes,
	}
}

func mustCreate(t *testing.T, fixture storeFixture, creatorID string, draft Draft) Declaration {
	t.Helper()
	created, err := fixture.store.Create(context.Background(), creatorID, draft)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return created
}

func mustGet(t *testing.T, store *Store, id string) Declaration {
	t.Helper()
	entry, ok := store.Get(id)
	if !ok {
		t.Fatalf("expected declaration %s", id)
	}
	return entry
}

func storedDeclaration(t *testing.T, repository *Repository, id string) Declaration {
	t.Helper()
	entries, err := repository.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all failed: %v", err)
	}
	for _, entry := range entries {
		if entry.ID == id {
			return entry
		}
	}
	t.Fatalf("declaration %s not stored", id)
	return Declaration{}
}

func saludVision(texto string) Draft {
	return Draft{Texto: texto, Categoria: "Salud", Pilar: "Vision"}
}
