// Package cache stores merged enrichment results per normalized entity so
// that duplicate companies across rows and jobs skip the adapter fan-out.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/textnorm"
)

// DefaultVersion is the tag written with entries unless configured otherwise.
const DefaultVersion = "v1"

// DefaultTTL is how long a cached entity stays fresh.
const DefaultTTL = 7 * 24 * time.Hour

// Store persists cache entries. GetEntry returns nil, nil for a miss,
// including entries that have expired or carry another version tag.
type Store interface {
	GetEntry(ctx context.Context, key, versionTag string) (*model.CacheEntry, error)
	PutEntry(ctx context.Context, entry model.CacheEntry) error
}

// Key derives the cache key for an entity. It returns "" when the name
// normalizes to nothing, in which case the cache is skipped.
func Key(name, country string) string {
	k := textnorm.Key(name)
	if k == "" {
		return ""
	}
	if c := strings.ToLower(strings.TrimSpace(country)); c != "" {
		k += ":" + c
	}
	return k
}

// Fresh reports whether e is usable at now for versionTag.
func Fresh(e *model.CacheEntry, versionTag string, now time.Time) bool {
	if e == nil || e.VersionTag != versionTag {
		return false
	}
	return e.TTL <= 0 || now.Before(e.ExpiresAt())
}
