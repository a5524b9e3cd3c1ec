// Package backfill fills missing genre values from prior extractions of
// the same given name.
package backfill

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
)

// GenreLookup exposes the genre history of a given name. Implemented by
// the store.
type GenreLookup interface {
	// GenresForName returns the non-empty genres of all processed
	// records whose name1 matches name case-insensitively.
	GenresForName(ctx context.Context, name string) ([]identity.Genre, error)
}

// Cache memoizes majority-vote outcomes for one run. The fixup pass
// shares it across workers, so access is mutex-guarded.
type Cache struct {
	mu     sync.Mutex
	genres map[string]identity.Genre
}

// NewCache creates an empty run-scoped cache.
func NewCache() *Cache {
	return &Cache{genres: make(map[string]identity.Genre)}
}

func (c *Cache) get(name string) (identity.Genre, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.genres[name]
	return g, ok
}

func (c *Cache) put(name string, g identity.Genre) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.genres[name] = g
}

// Backfill resolves a genre for name by majority vote over prior
// extractions of the same given name. At least two agreeing records are
// required; a conflicting history needs a strict majority, and a tie
// yields no genre. The empty outcome is cached too, so a name is looked
// up at most once per run.
func Backfill(ctx context.Context, lookup GenreLookup, cache *Cache, name string) (identity.Genre, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", nil
	}

	if g, ok := cache.get(key); ok {
		return g, nil
	}

	genres, err := lookup.GenresForName(ctx, key)
	if err != nil {
		return "", eris.Wrapf(err, "backfill: lookup genres for %q", key)
	}

	g := majority(genres)
	cache.put(key, g)

	if g != "" {
		zap.L().Debug("backfill: genre resolved from history",
			zap.String("name", key),
			zap.String("genre", string(g)),
			zap.Int("votes", len(genres)),
		)
	}
	return g, nil
}

// majority returns the winning genre, or empty when fewer than two
// records agree or the vote ties.
func majority(genres []identity.Genre) identity.Genre {
	var mr, ms int
	for _, g := range genres {
		switch g {
		case identity.GenreMr:
			mr++
		case identity.GenreMs:
			ms++
		}
	}

	switch {
	case mr >= 2 && mr > ms:
		return identity.GenreMr
	case ms >= 2 && ms > mr:
		return identity.GenreMs
	default:
		return ""
	}
}
