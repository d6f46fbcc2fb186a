package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/98iam/classtrack-api/internal/repository"
)

// Cache key patterns invalidated when the ledger changes.
const (
	rosterCachePattern     = "roster:*"
	attendanceCachePattern = "attendance:*"
)

// CacheInvalidationListener drops cached roster and ledger projections when
// a commit lands, so read-side views reload fresh data.
type CacheInvalidationListener struct {
	cache  *repository.CacheRepository
	logger *zap.Logger
}

// NewCacheInvalidationListener constructs the listener.
func NewCacheInvalidationListener(cache *repository.CacheRepository, logger *zap.Logger) *CacheInvalidationListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheInvalidationListener{cache: cache, logger: logger}
}

// AttendanceUpdated implements CommitListener.
func (l *CacheInvalidationListener) AttendanceUpdated(ctx context.Context, date string) {
	for _, pattern := range []string{rosterCachePattern, attendanceCachePattern} {
		if err := l.cache.DeleteByPattern(ctx, pattern); err != nil {
			l.logger.Warn("cache invalidation failed",
				zap.String("pattern", pattern),
				zap.String("date", date),
				zap.Error(err))
		}
	}
}

// SessionCompleted implements CommitListener. Invalidation already happened
// on AttendanceUpdated; nothing further to do here.
func (l *CacheInvalidationListener) SessionCompleted(ctx context.Context, date string) {}
