package cachestore

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/datastore/entities"
	"github.com/estoca-ai/estoca-worker/internal/datastore/repository"
	"github.com/estoca-ai/estoca-worker/internal/errors"
)

// PersistentStore keeps partitions in the worker database so they outlive
// the process.
type PersistentStore struct {
	repo  repository.CacheRepository
	quota QuotaGuard
}

var _ Store = (*PersistentStore)(nil)

// NewPersistentStore creates a store over repo. quota may be nil.
func NewPersistentStore(repo repository.CacheRepository, quota QuotaGuard) *PersistentStore {
	if quota == nil {
		quota = unlimited{}
	}
	return &PersistentStore{repo: repo, quota: quota}
}

type persistentPartition struct {
	store *PersistentStore
	row   entities.CachePartition
}

// Open returns the named partition, creating it if needed.
func (s *PersistentStore) Open(ctx context.Context, name, generation string) (Partition, error) {
	row, err := s.repo.EnsurePartition(ctx, name, generation)
	if err != nil {
		return nil, storageError(err, "open", name)
	}
	return &persistentPartition{store: s, row: *row}, nil
}

// Has reports whether name exists.
func (s *PersistentStore) Has(ctx context.Context, name string) (bool, error) {
	_, err := s.repo.GetPartition(ctx, name)
	if errors.Is(err, repository.ErrPartitionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageError(err, "has", name)
	}
	return true, nil
}

// Keys lists partitions in creation order.
func (s *PersistentStore) Keys(ctx context.Context) ([]PartitionInfo, error) {
	rows, err := s.repo.ListPartitions(ctx)
	if err != nil {
		return nil, storageError(err, "keys", "")
	}
	out := make([]PartitionInfo, len(rows))
	for i := range rows {
		out[i] = PartitionInfo{Name: rows[i].Name, Generation: rows[i].Generation, CreatedAt: rows[i].CreatedAt}
	}
	return out, nil
}

// Delete removes a partition and its entries.
func (s *PersistentStore) Delete(ctx context.Context, name string) (bool, error) {
	ok, err := s.repo.DeletePartition(ctx, name)
	if err != nil {
		return false, storageError(err, "delete", name)
	}
	return ok, nil
}

// Match searches every partition in creation order.
func (s *PersistentStore) Match(ctx context.Context, key Key) (*Response, bool, error) {
	rows, err := s.repo.ListPartitions(ctx)
	if err != nil {
		return nil, false, storageError(err, "match", "")
	}
	for i := range rows {
		p := &persistentPartition{store: s, row: rows[i]}
		resp, ok, err := p.Match(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return resp, true, nil
		}
	}
	return nil, false, nil
}

// Close is a no-op; the database handle is owned by the caller.
func (s *PersistentStore) Close() error { return nil }

func (p *persistentPartition) Name() string       { return p.row.Name }
func (p *persistentPartition) Generation() string { return p.row.Generation }

func (p *persistentPartition) Match(ctx context.Context, key Key) (*Response, bool, error) {
	row, err := p.store.repo.GetEntry(ctx, p.row.ID, key.Hash())
	if errors.Is(err, repository.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageError(err, "match", p.row.Name)
	}
	resp, err := toResponse(row)
	if err != nil {
		return nil, false, storageError(err, "decode", p.row.Name)
	}
	return resp, true, nil
}

func (p *persistentPartition) Put(ctx context.Context, key Key, resp *Response) error {
	if err := p.store.quota.Allow(ctx, int64(len(resp.Body))); err != nil {
		return storageError(err, "put", p.row.Name)
	}
	row, err := toEntity(key, resp)
	if err != nil {
		return storageError(err, "encode", p.row.Name)
	}
	row.PartitionID = p.row.ID
	if err := p.store.repo.PutEntry(ctx, row); err != nil {
		return storageError(err, "put", p.row.Name)
	}
	return nil
}

func (p *persistentPartition) PutAll(ctx context.Context, entries []Entry) error {
	var total int64
	rows := make([]entities.CacheEntry, 0, len(entries))
	for _, e := range entries {
		row, err := toEntity(e.Key, e.Response)
		if err != nil {
			return storageError(err, "encode", p.row.Name)
		}
		total += row.Size
		rows = append(rows, *row)
	}
	if err := p.store.quota.Allow(ctx, total); err != nil {
		return storageError(err, "put_all", p.row.Name)
	}
	if err := p.store.repo.PutEntries(ctx, p.row.ID, rows); err != nil {
		return storageError(err, "put_all", p.row.Name)
	}
	return nil
}

func (p *persistentPartition) Delete(ctx context.Context, key Key) (bool, error) {
	ok, err := p.store.repo.DeleteEntry(ctx, p.row.ID, key.Hash())
	if err != nil {
		return false, storageError(err, "delete_entry", p.row.Name)
	}
	return ok, nil
}

func (p *persistentPartition) Keys(ctx context.Context) ([]Key, error) {
	rows, err := p.store.repo.ListEntries(ctx, p.row.ID)
	if err != nil {
		return nil, storageError(err, "keys", p.row.Name)
	}
	keys := make([]Key, len(rows))
	for i := range rows {
		keys[i] = Key{Method: rows[i].Method, URL: rows[i].URL}
	}
	return keys, nil
}

func toEntity(key Key, resp *Response) (*entities.CacheEntry, error) {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return nil, err
	}
	return &entities.CacheEntry{
		KeyHash:  key.Hash(),
		Method:   key.Method,
		URL:      key.URL,
		Status:   resp.Status,
		Header:   string(header),
		Body:     append([]byte(nil), resp.Body...),
		Digest:   resp.Digest(),
		Size:     int64(len(resp.Body)),
		StoredAt: time.Now(),
	}, nil
}

func toResponse(row *entities.CacheEntry) (*Response, error) {
	header := http.Header{}
	if row.Header != "" {
		if err := json.Unmarshal([]byte(row.Header), &header); err != nil {
			return nil, err
		}
	}
	return &Response{
		Status:   row.Status,
		Header:   header,
		Body:     row.Body,
		StoredAt: row.StoredAt,
	}, nil
}
