package analyst_directory

import (
	"context"
	"time"

	"github.com/clearco/calendar-connector/internal/domain"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const snapshotCacheKey = "analyst-index"

// CachedAnalystDirectory wraps another directory with a short-lived snapshot
// cache so a scheduler pass over many connections does not reload the
// directory table once per connection.  Each sync run still sees a single
// point-in-time snapshot.
type CachedAnalystDirectory struct {
	delegate AnalystDirectory
	cache    *expirable.LRU[string, domain.AnalystIndex]
}

func NewCachedAnalystDirectory(delegate AnalystDirectory, ttl time.Duration) *CachedAnalystDirectory {
	return &CachedAnalystDirectory{
		delegate: delegate,
		cache:    expirable.NewLRU[string, domain.AnalystIndex](1, nil, ttl),
	}
}

func (cad *CachedAnalystDirectory) GetAnalystIndex(ctx context.Context) (domain.AnalystIndex, error) {

	if index, ok := cad.cache.Get(snapshotCacheKey); ok {
		return index, nil
	}

	index, err := cad.delegate.GetAnalystIndex(ctx)
	if err != nil {
		return domain.AnalystIndex{}, err
	}

	cad.cache.Add(snapshotCacheKey, index)

	return index, nil
}
