// Package cache provides the tag-based invalidation hook fired after
// statement finalization and reconciliation so read-side dashboards see
// fresh data. Dashboards compare the version they rendered with against
// the current one instead of maintaining incremental indexes.
package cache

import (
	"sync"

	"go.uber.org/zap"
)

// Tags invalidated by this subsystem.
const (
	TagBankTransactions = "bank-transactions"
	TagPayments         = "payments"
	TagFinancialSummary = "financial-summary"
)

// Invalidator signals read-side views that a tag's data changed.
type Invalidator interface {
	Invalidate(tags ...string)
}

// TagVersions is an in-memory Invalidator keeping a monotonically
// increasing version per tag.
type TagVersions struct {
	mu       sync.RWMutex
	versions map[string]uint64
	logger   *zap.Logger
}

// NewTagVersions creates a TagVersions invalidator.
func NewTagVersions(logger *zap.Logger) *TagVersions {
	return &TagVersions{
		versions: make(map[string]uint64),
		logger:   logger,
	}
}

// Invalidate bumps the version of every given tag.
func (t *TagVersions) Invalidate(tags ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tag := range tags {
		t.versions[tag]++
		t.logger.Debug("Cache tag invalidated",
			zap.String("tag", tag),
			zap.Uint64("version", t.versions[tag]))
	}
}

// Version returns the current version of a tag. Tags never invalidated
// report version zero.
func (t *TagVersions) Version(tag string) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.versions[tag]
}
