package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"omaope/internal/cache"
)

// CachedEngine serves repeated images from a cache instead of calling the
// wrapped engine again. Cache failures only cost a cache miss.
type CachedEngine struct {
	next  Engine
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

func NewCachedEngine(next Engine, c cache.Cache, ttl time.Duration, log *slog.Logger) *CachedEngine {
	return &CachedEngine{next: next, cache: c, ttl: ttl, log: log}
}

func (e *CachedEngine) Name() string { return e.next.Name() }

func (e *CachedEngine) Detect(ctx context.Context, in Input) (Result, error) {
	key := cacheKey(e.next.Name(), in)

	cached, err := e.cache.GetResult(ctx, key)
	if err != nil {
		e.log.Warn("ocr cache lookup failed", "input_id", in.ID, "err", err)
	}
	if cached != nil {
		e.log.Debug("ocr cache hit", "input_id", in.ID)
		res := Result{InputID: in.ID}
		for _, a := range cached.Annotations {
			res.Annotations = append(res.Annotations, Annotation{Description: a.Description, Locale: a.Locale})
		}
		return res, nil
	}

	res, err := e.next.Detect(ctx, in)
	if err != nil {
		return Result{}, err
	}

	entry := &cache.Result{Engine: e.next.Name()}
	for _, a := range res.Annotations {
		entry.Annotations = append(entry.Annotations, cache.Annotation{Description: a.Description, Locale: a.Locale})
	}
	if err := e.cache.SetResult(ctx, key, entry, e.ttl); err != nil {
		e.log.Warn("ocr cache store failed", "input_id", in.ID, "err", err)
	}
	return res, nil
}

// cacheKey identifies an image by content, engine and language hints.
func cacheKey(engine string, in Input) string {
	sum := sha256.Sum256(in.Image)
	return engine + ":" + strings.Join(in.Languages, ",") + ":" + hex.EncodeToString(sum[:])
}
