package cachestore

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// QuotaGuard decides whether a write of n bytes may proceed.
type QuotaGuard interface {
	Allow(ctx context.Context, n int64) error
}

// usageFunc matches disk.UsageWithContext so tests can substitute it.
type usageFunc func(ctx context.Context, path string) (*disk.UsageStat, error)

// DiskQuota refuses writes once the filesystem holding Path is at or above
// MaxPercent used. A MaxPercent of 0 disables the guard.
type DiskQuota struct {
	Path       string
	MaxPercent float64
	usage      usageFunc
}

// NewDiskQuota creates a guard for the filesystem containing path.
func NewDiskQuota(path string, maxPercent float64) *DiskQuota {
	return &DiskQuota{Path: path, MaxPercent: maxPercent, usage: disk.UsageWithContext}
}

// Allow implements QuotaGuard.
func (q *DiskQuota) Allow(ctx context.Context, n int64) error {
	if q == nil || q.MaxPercent <= 0 {
		return nil
	}
	stat, err := q.usage(ctx, q.Path)
	if err != nil {
		// Unknown usage never blocks a write.
		return nil
	}
	projected := stat.UsedPercent
	if stat.Total > 0 && n > 0 {
		projected = float64(stat.Used+uint64(n)) / float64(stat.Total) * 100
	}
	if projected >= q.MaxPercent {
		return fmt.Errorf("%w: %.1f%% used, limit %.1f%%", ErrQuotaExceeded, projected, q.MaxPercent)
	}
	return nil
}

type unlimited struct{}

func (unlimited) Allow(context.Context, int64) error { return nil }
