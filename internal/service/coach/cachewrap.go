package coach

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mkrv/chesscoach/internal/lichess"
	"github.com/mkrv/chesscoach/internal/service/cache"
)

// cachingEvaluator layers a Redis JSON cache over the cloud evaluation
// client. Misses and not-found results are passed through uncached.
type cachingEvaluator struct {
	inner  evaluator
	cache  *cache.CacheService
	ttl    time.Duration
	logger *zap.Logger
}

type evaluator interface {
	Evaluate(ctx context.Context, fen string, multiPV int) (*lichess.CloudEval, error)
}

func NewCachingEvaluator(inner evaluator, cacheSvc *cache.CacheService, ttl time.Duration, logger *zap.Logger) evaluator {
	if cacheSvc == nil || ttl <= 0 {
		return inner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachingEvaluator{inner: inner, cache: cacheSvc, ttl: ttl, logger: logger}
}

func (c *cachingEvaluator) Evaluate(ctx context.Context, fen string, multiPV int) (*lichess.CloudEval, error) {
	key := evalCacheKey(fen, multiPV)

	cached := &lichess.CloudEval{}
	if err := c.cache.Get(ctx, key, cached); err != nil {
		c.logger.Warn("eval cache read failed", zap.Error(err))
	} else if len(cached.PVs) > 0 {
		return cached, nil
	}

	res, err := c.inner.Evaluate(ctx, fen, multiPV)
	if err != nil {
		return nil, err
	}
	if len(res.PVs) > 0 {
		if err := c.cache.Set(ctx, key, res, c.ttl); err != nil {
			c.logger.Warn("eval cache write failed", zap.Error(err))
		}
	}
	return res, nil
}

// cachingExplorer does the same for opening explorer lookups.
type cachingExplorer struct {
	inner  openingLookup
	cache  *cache.CacheService
	ttl    time.Duration
	logger *zap.Logger
}

type openingLookup interface {
	Lookup(ctx context.Context, query lichess.ExplorerQuery) (*lichess.ExplorerResult, error)
}

func NewCachingExplorer(inner openingLookup, cacheSvc *cache.CacheService, ttl time.Duration, logger *zap.Logger) openingLookup {
	if cacheSvc == nil || ttl <= 0 {
		return inner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachingExplorer{inner: inner, cache: cacheSvc, ttl: ttl, logger: logger}
}

func (c *cachingExplorer) Lookup(ctx context.Context, query lichess.ExplorerQuery) (*lichess.ExplorerResult, error) {
	key := explorerCacheKey(query)

	cached := &lichess.ExplorerResult{}
	if err := c.cache.Get(ctx, key, cached); err != nil {
		c.logger.Warn("explorer cache read failed", zap.Error(err))
	} else if cached.TotalGames() > 0 {
		return cached, nil
	}

	res, err := c.inner.Lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	if res.TotalGames() > 0 {
		if err := c.cache.Set(ctx, key, res, c.ttl); err != nil {
			c.logger.Warn("explorer cache write failed", zap.Error(err))
		}
	}
	return res, nil
}

func evalCacheKey(fen string, multiPV int) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(fen) + "|" + strconv.Itoa(multiPV)))
	return "coach:eval:" + hex.EncodeToString(sum[:])
}

func explorerCacheKey(query lichess.ExplorerQuery) string {
	raw := strings.Join(query.Play, ",") + "|" +
		strconv.Itoa(query.Since) + "|" +
		strconv.Itoa(query.Until) + "|" +
		strconv.Itoa(query.TopGames)
	sum := sha256.Sum256([]byte(raw))
	return "coach:opening:" + hex.EncodeToString(sum[:])
}
