package declarations

import (
	"context"
	"errors"
	"slices"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/dividis/backend/internal/docstore"
	"go.uber.org/zap"
)

const (
	opRepositoryNew = "declarations.repository.new"
	opLoadAll       = "declarations.repository.load_all"
	opPrepend       = "declarations.repository.prepend"
	opReplace       = "declarations.repository.replace"
	opRemove        = "declarations.repository.remove"
	opTransfer      = "declarations.repository.transfer"

	fieldDeclarations = "declaraciones"

	reasonMissingClient     = "missing_client"
	reasonReadFailed        = "read_failed"
	reasonWriteFailed       = "write_failed"
	reasonDecodeFailed      = "decode_failed"
	reasonEncodeFailed      = "encode_failed"
	reasonPartitionAbsent   = "partition_absent"
	reasonDeclarationAbsent = "declaration_absent"
)

var (
	errMissingClient     = errors.New("document client is required")
	errPartitionAbsent   = errors.New("partition does not exist")
	errDeclarationAbsent = errors.New("declaration not found in partition")
	noOpLogger           = zap.NewNop()
)

// PartitionShape is a partition document resolved at read time. Partitions
// written by older clients hold one declaration as the document body instead
// of a "declaraciones" array.
type PartitionShape interface {
	Declarations() []Declaration
	partitionShape()
}

// ArrayPartition holds {declaraciones: [...]}.
type ArrayPartition struct {
	Entries []Declaration
}

// SinglePartition holds one declaration as the document body.
type SinglePartition struct {
	Entry Declaration
}

// Declarations returns the stored entries in order.
func (p ArrayPartition) Declarations() []Declaration { return p.Entries }

func (ArrayPartition) partitionShape() {}

// Declarations returns the single entry.
func (p SinglePartition) Declarations() []Declaration { return []Declaration{p.Entry} }

func (SinglePartition) partitionShape() {}

type partitionDocument struct {
	Declaraciones []Declaration `json:"declaraciones"`
}

// ResolvePartition decodes a stored partition into its shape.
func ResolvePartition(snapshot docstore.Snapshot) (PartitionShape, error) {
	if raw, ok := snapshot.Data[fieldDeclarations]; ok {
		if _, isArray := raw.([]any); isArray || raw == nil {
			var document partitionDocument
			if err := docstore.Decode(snapshot.Data, &document); err != nil {
				return nil, err
			}
			return ArrayPartition{Entries: document.Declaraciones}, nil
		}
	}
	var entry Declaration
	if err := docstore.Decode(snapshot.Data, &entry); err != nil {
		return nil, err
	}
	if entry.ID == "" {
		entry.ID = snapshot.Ref.ID
	}
	return SinglePartition{Entry: entry}, nil
}

// RepositoryConfig describes the dependencies of a Repository.
type RepositoryConfig struct {
	Client docstore.Client
	Logger *zap.Logger
}

// Repository reads and rewrites declaracionesPublicas partitions. Every
// mutation rewrites the whole partition array.
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

// LoadAll flattens every partition, marks entries public and orders them by
// share count, highest first. Ties keep storage order.
func (r *Repository) LoadAll(ctx context.Context) ([]Declaration, error) {
	snapshots, err := r.client.List(ctx, docstore.CollectionPublicDeclarations)
	if err != nil {
		r.logError(opLoadAll, reasonReadFailed, err)
		return nil, apperrors.Persistence(opLoadAll, reasonReadFailed, err)
	}
	declarations := make([]Declaration, 0, len(snapshots))
	for _, snapshot := range snapshots {
		shape, err := ResolvePartition(snapshot)
		if err != nil {
			r.logError(opLoadAll, reasonDecodeFailed, err, zap.String("partition", snapshot.Ref.ID))
			return nil, apperrors.Persistence(opLoadAll, reasonDecodeFailed, err)
		}
		for _, entry := range shape.Declarations() {
			declarations = append(declarations, entry.normalized())
		}
	}
	slices.SortStableFunc(declarations, func(a, b Declaration) int {
		return b.Compartidos - a.Compartidos
	})
	return declarations, nil
}

// Prepend inserts d at the head of its partition, creating the partition when absent.
func (r *Repository) Prepend(ctx context.Context, d Declaration) error {
	ref := d.Partition()
	shape, exists, err := r.read(ctx, opPrepend, ref)
	if err != nil {
		return err
	}
	entries := []Declaration{d.normalized()}
	if !exists {
		return r.write(ctx, opPrepend, ref, nil, entries)
	}
	entries = append(entries, shape.Declarations()...)
	return r.write(ctx, opPrepend, ref, shape, entries)
}

// Replace swaps the stored entry with the same id for d.
func (r *Repository) Replace(ctx context.Context, d Declaration) error {
	_, err := r.mapEntry(ctx, opReplace, d.Partition(), d.ID, func(Declaration) Declaration {
		return d.normalized()
	})
	return err
}

// Remove drops the entry with id from its partition.
func (r *Repository) Remove(ctx context.Context, id, categoria, pilar string) error {
	ref := docstore.PublicPartition(categoria, pilar)
	shape, exists, err := r.read(ctx, opRemove, ref)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound(opRemove, reasonPartitionAbsent, errPartitionAbsent)
	}
	remaining := slices.DeleteFunc(slices.Clone(shape.Declarations()), func(entry Declaration) bool {
		return entry.ID == id
	})
	return r.write(ctx, opRemove, ref, shape, remaining)
}

// Transfer assigns a new creator to the entry with id and returns the stored result.
func (r *Repository) Transfer(ctx context.Context, id, newOwnerID, categoria, pilar string) (Declaration, error) {
	return r.mapEntry(ctx, opTransfer, docstore.PublicPartition(categoria, pilar), id, func(entry Declaration) Declaration {
		entry.CreadorID = newOwnerID
		return entry
	})
}

func (r *Repository) mapEntry(ctx context.Context, operation string, ref docstore.Ref, id string, replace func(Declaration) Declaration) (Declaration, error) {
	shape, exists, err := r.read(ctx, operation, ref)
	if err != nil {
		return Declaration{}, err
	}
	if !exists {
		return Declaration{}, apperrors.NotFound(operation, reasonPartitionAbsent, errPartitionAbsent)
	}
	entries := slices.Clone(shape.Declarations())
	index := slices.IndexFunc(entries, func(entry Declaration) bool { return entry.ID == id })
	if index < 0 {
		return Declaration{}, apperrors.NotFound(operation, reasonDeclarationAbsent, errDeclarationAbsent)
	}
	entries[index] = replace(entries[index])
	if err := r.write(ctx, operation, ref, shape, entries); err != nil {
		return Declaration{}, err
	}
	return entries[index].normalized(), nil
}

func (r *Repository) read(ctx context.Context, operation string, ref docstore.Ref) (PartitionShape, bool, error) {
	snapshot, err := r.client.Get(ctx, ref)
	if err != nil {
		r.logError(operation, reasonReadFailed, err, zap.String("partition", ref.ID))
		return nil, false, apperrors.Persistence(operation, reasonReadFailed, err)
	}
	if !snapshot.Exists {
		return nil, false, nil
	}
	shape, err := ResolvePartition(snapshot)
	if err != nil {
		r.logError(operation, reasonDecodeFailed, err, zap.String("partition", ref.ID))
		return nil, true, apperrors.Persistence(operation, reasonDecodeFailed, err)
	}
	return shape, true, nil
}

// write stores entries as an array partition. Single-shape and absent
// partitions are rewritten whole, array partitions get a field update.
func (r *Repository) write(ctx context.Context, operation string, ref docstore.Ref, previous PartitionShape, entries []Declaration) error {
	if entries == nil {
		entries = []Declaration{}
	}
	data, err := docstore.Encode(partitionDocument{Declaraciones: entries})
	if err != nil {
		return apperrors.New(apperrors.KindInternal, operation, reasonEncodeFailed, err)
	}
	if _, isArray := previous.(ArrayPartition); isArray {
		err = r.client.Update(ctx, ref, data)
	} else {
		err = r.client.Set(ctx, ref, data, docstore.SetOptions{})
	}
	if err == nil {
		return nil
	}
	r.logError(operation, reasonWriteFailed, err, zap.String("partition", ref.ID))
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound(operation, reasonPartitionAbsent, err)
	}
	return apperrors.Persistence(operation, reasonWriteFailed, err)
}

func (r *Repository) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	r.logger.Error("declarations repository error", append(attrs, fields...)...)
}
