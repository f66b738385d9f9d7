// Package docstore is the document database collaborator used by every
// repository: named documents grouped in collections, read and written as
// whole JSON maps, with no transactions exposed to callers.
package docstore

import (
	"context"
	"encoding/json"
	"strings"
)

// Collection names and document ids used by dividis. Kept bit-exact with the
// deployed layout.
const (
	CollectionPublicDeclarations = "declaracionesPublicas"
	collectionUsers              = "usuarios"
	subcollectionUserData        = "datos"
	DocumentCategories           = "categories"
	DocumentProgress             = "progreso"
	DocumentJourney              = "viaje"
)

// Data is the decoded body of a document.
type Data map[string]any

// Ref addresses one document.
type Ref struct {
	Collection string
	ID         string
}

// Path renders the slash separated document path.
func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

// Valid reports whether both path segments are present.
func (r Ref) Valid() bool {
	return strings.TrimSpace(r.Collection) != "" && strings.TrimSpace(r.ID) != ""
}

// PartitionID builds the "{categoria}-{pilar}" key of a public partition.
func PartitionID(categoria, pilar string) string {
	return categoria + "-" + pilar
}

// PublicPartition addresses declaracionesPublicas/{categoria}-{pilar}.
func PublicPartition(categoria, pilar string) Ref {
	return Ref{Collection: CollectionPublicDeclarations, ID: PartitionID(categoria, pilar)}
}

// UserDataCollection returns usuarios/{userID}/datos.
func UserDataCollection(userID string) string {
	return collectionUsers + "/" + userID + "/" + subcollectionUserData
}

// UserCategories addresses usuarios/{userID}/datos/categories.
func UserCategories(userID string) Ref {
	return Ref{Collection: UserDataCollection(userID), ID: DocumentCategories}
}

// UserProgress addresses usuarios/{userID}/datos/progreso.
func UserProgress(userID string) Ref {
	return Ref{Collection: UserDataCollection(userID), ID: DocumentProgress}
}

// UserJourney addresses usuarios/{userID}/datos/viaje.
func UserJourney(userID string) Ref {
	return Ref{Collection: UserDataCollection(userID), ID: DocumentJourney}
}

// Snapshot is the result of a read. Exists is false for absent documents.
type Snapshot struct {
	Ref    Ref
	Exists bool
	Data   Data
}

// SetOptions controls Set. Merge deep-merges into the stored document
// instead of replacing it.
type SetOptions struct {
	Merge bool
}

// Client is the narrow document store surface the repositories depend on.
type Client interface {
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	Set(ctx context.Context, ref Ref, data Data, opts SetOptions) error
	// Update replaces the given top-level fields and fails when the document is absent.
	Update(ctx context.Context, ref Ref, fields Data) error
	// Delete fails when the document is absent.
	Delete(ctx context.Context, ref Ref) error
	List(ctx context.Context, collection string) ([]Snapshot, error)
}

// Encode converts a JSON-tagged value into document data.
func Encode(value any) (Data, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	data := Data{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Decode converts document data into a JSON-tagged value.
func Decode(data Data, target any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

// MergeData deep-merges patch over base and returns a new map. Nested maps
// merge key by key, every other value in patch replaces the stored one.
func MergeData(base, patch Data) Data {
	merged := make(Data, len(base)+len(patch))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range patch {
		patchMap, patchIsMap := asMap(value)
		baseMap, baseIsMap := asMap(merged[key])
		if patchIsMap && baseIsMap {
			merged[key] = map[string]any(MergeData(baseMap, patchMap))
			continue
		}
		merged[key] = value
	}
	return merged
}

func asMap(value any) (Data, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return Data(typed), true
	case Data:
		return typed, true
	default:
		return nil, false
	}
}
