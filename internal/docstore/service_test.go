package docstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/dividis/backend/internal/docstore"
	"github.com/dividis/backend/internal/docstore/docstoretest"
)

func TestServiceGetReportsMissingDocument(t *testing.T) {
	service := docstoretest.NewService(t)

	snapshot, err := service.Get(context.Background(), docstore.UserProgress("user-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshot.Exists {
		t.Fatalf("expected missing document, got %#v", snapshot)
	}
	if snapshot.Ref.Path() != "usuarios/user-1/datos/progreso" {
		t.Fatalf("unexpected ref path %q", snapshot.Ref.Path())
	}
}

func TestServiceSetReplacesAndMerges(t *testing.T) {
	ctx := context.Background()
	service := docstoretest.NewService(t)
	ref := docstore.UserCategories("user-1")

	if err := service.Set(ctx, ref, docstore.Data{
		"Salud":     map[string]any{"vision": "a"},
		"Intelecto": map[string]any{"vision": "b"},
	}, docstore.SetOptions{}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := service.Set(ctx, ref, docstore.Data{
		"Salud": map[string]any{"proposito": "c"},
	}, docstore.SetOptions{Merge: true}); err != nil {
		t.Fatalf("merge set failed: %v", err)
	}

	snapshot, err := service.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	salud, ok := snapshot.Data["Salud"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map, got %#v", snapshot.Data["Salud"])
	}
	if salud["vision"] != "a" || salud["proposito"] != "c" {
		t.Fatalf("expected deep merge, got %#v", salud)
	}
	if _, ok := snapshot.Data["Intelecto"]; !ok {
		t.Fatalf("expected untouched key to survive merge")
	}

	if err := service.Set(ctx, ref, docstore.Data{"Carrera": map[string]any{}}, docstore.SetOptions{}); err != nil {
		t.Fatalf("replace set failed: %v", err)
	}
	snapshot, err = service.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(snapshot.Data) != 1 {
		t.Fatalf("expected replace to drop old keys, got %#v", snapshot.Data)
	}
}

func TestServiceUpdateRequiresExistingDocument(t *testing.T) {
	ctx := context.Background()
	service := docstoretest.NewService(t)
	ref := docstore.PublicPartition("Salud", "vision")

	err := service.Update(ctx, ref, docstore.Data{"declaraciones": []any{}})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := service.Set(ctx, ref, docstore.Data{"declaraciones": []any{"x"}, "extra": true}, docstore.SetOptions{}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := service.Update(ctx, ref, docstore.Data{"declaraciones": []any{"y", "z"}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	snapshot, err := service.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	entries, _ := snapshot.Data["declaraciones"].([]any)
	if len(entries) != 2 {
		t.Fatalf("expected updated array, got %#v", snapshot.Data["declaraciones"])
	}
	if snapshot.Data["extra"] != true {
		t.Fatalf("expected untouched field to survive update")
	}
}

func TestServiceDeleteAndList(t *testing.T) {
	ctx := context.Background()
	service := docstoretest.NewService(t)

	for _, pilar := range []string{"vision", "creencias", "proposito"} {
		if err := service.Set(ctx, docstore.PublicPartition("Salud", pilar), docstore.Data{"pilar": pilar}, docstore.SetOptions{}); err != nil {
			t.Fatalf("set %s failed: %v", pilar, err)
		}
	}

	snapshots, err := service.List(ctx, docstore.CollectionPublicDeclarations)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	got := make([]string, 0, len(snapshots))
	for _, snapshot := range snapshots {
		got = append(got, snapshot.Ref.ID)
	}
	want := []string{"Salud-creencias", "Salud-proposito", "Salud-vision"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for index := range want {
		if got[index] != want[index] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if err := service.Delete(ctx, docstore.PublicPartition("Salud", "vision")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	err = service.Delete(ctx, docstore.PublicPartition("Salud", "vision"))
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestServiceRejectsInvalidRef(t *testing.T) {
	service := docstoretest.NewService(t)
	err := service.Set(context.Background(), docstore.Ref{Collection: "x"}, docstore.Data{}, docstore.SetOptions{})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	_, err := docstore.NewService(docstore.ServiceConfig{Clock: time.Now})
	if err == nil {
		t.Fatalf("expected error for missing database")
	}
}

func TestMergeDataKeepsBaseIntact(t *testing.T) {
	base := docstore.Data{"a": map[string]any{"x": 1.0}}
	merged := docstore.MergeData(base, docstore.Data{"a": map[string]any{"y": 2.0}})

	nested := merged["a"].(map[string]any)
	if nested["x"] != 1.0 || nested["y"] != 2.0 {
		t.Fatalf("unexpected merge result %#v", merged)
	}
	if _, leaked := base["a"].(map[string]any)["y"]; leaked {
		t.Fatalf("expected base to stay unchanged")
	}
}
