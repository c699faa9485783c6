// Package registry remembers what has been learned about media URLs so
// later classifications can start from a hint.
package registry

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohaanymo/streamprobe/internal/models"
	"github.com/mohaanymo/streamprobe/internal/urlnorm"
)

// DefaultSize bounds the number of remembered URLs.
const DefaultSize = 4096

// Videos is a bounded, concurrency-safe URL -> metadata cache keyed by
// normalized URL.
type Videos struct {
	cache *lru.Cache[string, *models.VideoMetadata]
	now   func() time.Time
}

// New creates a registry holding at most size entries.
func New(size int) *Videos {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[string, *models.VideoMetadata](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &Videos{cache: cache, now: time.Now}
}

// GetVideoByURL looks up rawURL after normalization.
func (v *Videos) GetVideoByURL(rawURL string) (*models.VideoMetadata, bool) {
	return v.cache.Get(urlnorm.Normalize(rawURL))
}

// Remember stores md, replacing any earlier entry for the same URL.
func (v *Videos) Remember(md *models.VideoMetadata) {
	if md == nil {
		return
	}
	key := md.NormalizedURL
	if key == "" {
		key = urlnorm.Normalize(md.URL)
		md.NormalizedURL = key
	}
	if key == "" {
		return
	}
	if md.SeenAt.IsZero() {
		md.SeenAt = v.now()
	}
	v.cache.Add(key, md)
}

// Forget drops a URL.
func (v *Videos) Forget(rawURL string) {
	v.cache.Remove(urlnorm.Normalize(rawURL))
}

// Len returns the number of remembered URLs.
func (v *Videos) Len() int {
	return v.cache.Len()
}

// All returns the remembered entries, least recently used first.
func (v *Videos) All() []*models.VideoMetadata {
	return v.cache.Values()
}
