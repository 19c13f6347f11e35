// Package cachestore implements named, versioned cache partitions mapping a
// request identity to a stored response. Two backends exist: an in-memory
// one built on go-cache and a persistent one built on the gorm datastore.
package cachestore

import (
	"context"
	"time"

	"github.com/estoca-ai/estoca-worker/internal/errors"
)

// ErrQuotaExceeded is returned by writes refused by the quota guard.
var ErrQuotaExceeded = errors.NewStd("cache storage quota exceeded")

// Entry pairs a key with the response stored under it.
type Entry struct {
	Key      Key
	Response *Response
}

// PartitionInfo describes a partition without opening it.
type PartitionInfo struct {
	Name       string    `json:"name"`
	Generation string    `json:"generation"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store is the set of partitions.
type Store interface {
	// Open returns the named partition, creating it under generation if absent.
	Open(ctx context.Context, name, generation string) (Partition, error)
	// Has reports whether the partition exists.
	Has(ctx context.Context, name string) (bool, error)
	// Keys lists partitions in creation order.
	Keys(ctx context.Context) ([]PartitionInfo, error)
	// Delete removes a partition and all its entries.
	Delete(ctx context.Context, name string) (bool, error)
	// Match looks the key up across every partition in creation order.
	Match(ctx context.Context, key Key) (*Response, bool, error)
	// Close releases backend resources.
	Close() error
}

// Partition is one named cache. Each single operation is atomic and
// concurrent writes to one key are last-writer-wins.
type Partition interface {
	Name() string
	Generation() string
	Match(ctx context.Context, key Key) (*Response, bool, error)
	Put(ctx context.Context, key Key, resp *Response) error
	// PutAll stores every entry or none.
	PutAll(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, key Key) (bool, error)
	Keys(ctx context.Context) ([]Key, error)
}

func storageError(err error, op, partition string) error {
	category := errors.CategoryStorage
	if errors.Is(err, ErrQuotaExceeded) {
		category = errors.CategoryQuota
	}
	return errors.New(err).
		Component("cachestore").
		Category(category).
		Context("operation", op).
		Context("partition", partition).
		Build()
}
