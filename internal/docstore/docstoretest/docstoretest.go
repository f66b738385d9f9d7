// Package docstoretest provides document store fixtures for tests: a
// temp-file SQLite backed store and a client wrapper that injects failures.
package docstoretest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dividis/backend/internal/docstore"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Operation names a Client method.
type Operation string

const (
	OpGet    Operation = "get"
	OpSet    Operation = "set"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
)

// NewService opens a fresh SQLite database in the test's temp dir.
func NewService(t testing.TB) *docstore.Service {
	t.Helper()
	db := OpenDatabase(t)
	service, err := docstore.NewService(docstore.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build docstore service: %v", err)
	}
	return service
}

// OpenDatabase opens and migrates a temp-file SQLite database.
func OpenDatabase(t testing.TB) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "docstore.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&docstore.Document{}); err != nil {
		t.Fatalf("failed to migrate documents: %v", err)
	}
	return db
}

type failure struct {
	collectionPrefix string
	err              error
}

// FaultyClient delegates to Next unless a failure is armed for the operation.
type FaultyClient struct {
	Next docstore.Client

	mu       sync.Mutex
	failures map[Operation]failure
	calls    map[Operation]int
}

var _ docstore.Client = (*FaultyClient)(nil)

// NewFaultyClient wraps next.
func NewFaultyClient(next docstore.Client) *FaultyClient {
	return &FaultyClient{
		Next:     next,
		failures: make(map[Operation]failure),
		calls:    make(map[Operation]int),
	}
}

// Fail makes every call of op return err until Clear is called.
func (f *FaultyClient) Fail(op Operation, err error) {
	f.FailCollection(op, "", err)
}

// FailCollection arms a failure restricted to collections with the given prefix.
func (f *FaultyClient) FailCollection(op Operation, collectionPrefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = failure{collectionPrefix: collectionPrefix, err: err}
}

// Clear disarms the failure for op.
func (f *FaultyClient) Clear(op Operation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, op)
}

// Calls reports how many times op was invoked, failed calls included.
func (f *FaultyClient) Calls(op Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FaultyClient) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if err := f.record(OpGet, ref.Collection); err != nil {
		return docstore.Snapshot{}, err
	}
	return f.Next.Get(ctx, ref)
}

func (f *FaultyClient) Set(ctx context.Context, ref docstore.Ref, data docstore.Data, opts docstore.SetOptions) error {
	if err := f.record(OpSet, ref.Collection); err != nil {
		return err
	}
	return f.Next.Set(ctx, ref, data, opts)
}

func (f *FaultyClient) Update(ctx context.Context, ref docstore.Ref, fields docstore.Data) error {
	if err := f.record(OpUpdate, ref.Collection); err != nil {
		return err
	}
	return f.Next.Update(ctx, ref, fields)
}

func (f *FaultyClient) Delete(ctx context.Context, ref docstore.Ref) error {
	if err := f.record(OpDelete, ref.Collection); err != nil {
		return err
	}
	return f.Next.Delete(ctx, ref)
}

func (f *FaultyClient) List(ctx context.Context, collection string) ([]docstore.Snapshot, error) {
	if err := f.record(OpList, collection); err != nil {
		return nil, err
	}
	return f.Next.List(ctx, collection)
}

func (f *FaultyClient) record(op Operation, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	armed, ok := f.failures[op]
	if !ok {
		return nil
	}
	if armed.collectionPrefix != "" && !strings.HasPrefix(collection, armed.collectionPrefix) {
		return nil
	}
	return armed.err
}
