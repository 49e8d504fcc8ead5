package coachbuilder

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mkrv/chesscoach/internal/analysis"
	"github.com/mkrv/chesscoach/internal/config"
	"github.com/mkrv/chesscoach/internal/lichess"
	"github.com/mkrv/chesscoach/internal/llm"
	"github.com/mkrv/chesscoach/internal/msgcat"
	"github.com/mkrv/chesscoach/internal/service/cache"
	"github.com/mkrv/chesscoach/internal/service/coach"
)

// Deps holds everything New assembled. DB is nil when the archive runs on
// the in-memory repository.
type Deps struct {
	Service  *coach.Service
	Cache    *cache.CacheService
	Repo     coach.Repository
	Messages *msgcat.Catalog
	DB       *sql.DB
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Message catalog
	messages, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		return nil, fmt.Errorf("init message catalog: %w", err)
	}

	// Cache (Redis required: resume keys and session eviction depend on it)
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required for coach sessions/cache")
	}
	cconf, err := parseRedisURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	cacheSvc, err := cache.NewCacheService(*cconf, logger)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	// Repository (Postgres optional; the archive degrades to process memory)
	var db *sql.DB
	var repo coach.Repository
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		// basic pool settings
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(8)
		db.SetConnMaxLifetime(30 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		repo = coach.NewRepository(db)
		logger.Info("game archive on postgres")
	} else {
		repo = coach.NewMemoryRepository()
		logger.Warn("DATABASE_URL not set; game archive is in-memory and lost on restart")
	}

	// Lichess clients, both behind the Redis read-through cache
	lichessTimeout := time.Duration(cfg.LichessTimeoutSec) * time.Second
	evalTTL := time.Duration(cfg.EvalCacheTTL) * time.Second
	cachedEval := coach.NewCachingEvaluator(
		lichess.NewEvalClient(cfg.LichessEvalURL, lichess.WithTimeout(lichessTimeout)),
		cacheSvc, evalTTL, logger)
	cachedExplorer := coach.NewCachingExplorer(
		lichess.NewExplorerClient(cfg.LichessExplorerURL, lichess.WithTimeout(lichessTimeout)),
		cacheSvc, evalTTL, logger)

	// Narrative generator (optional; analysis degrades to book plus engine lines)
	narrator := llm.NewClient(cfg.GeminiBaseURL, cfg.GeminiModel, cfg.GeminiAPIKey,
		llm.WithTimeout(time.Duration(cfg.GeminiTimeout)*time.Second))
	if !narrator.Configured() {
		logger.Warn("GEMINI_API_KEY missing or malformed; commentary uses the canned fallback")
	}

	assembler, err := analysis.New(cachedEval, cachedExplorer, narrator, messages, analysis.Config{
		MultiPV:       cfg.EvalMultiPV,
		ExplorerSince: cfg.ExplorerSince,
		TopGames:      cfg.ExplorerTopGames,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init analysis: %w", err)
	}

	svcCfg := coach.Config{
		ResumeTTL:    time.Duration(cfg.ResumeTTLSec) * time.Second,
		HistoryLimit: cfg.HistoryLimit,
	}
	service, err := coach.NewService(cachedEval, assembler, cacheSvc, repo, messages, svcCfg, logger)
	if err != nil {
		return nil, err
	}

	return &Deps{Service: service, Cache: cacheSvc, Repo: repo, Messages: messages, DB: db}, nil
}

func parseRedisURL(raw string) (*cache.CacheConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	db := 0
	if u.Path != "" {
		p := strings.TrimPrefix(u.Path, "/")
		if p != "" {
			if n, err := strconv.Atoi(p); err == nil {
				db = n
			}
		}
	}
	pass, _ := u.User.Password()
	return &cache.CacheConfig{Host: host, Port: port, Password: pass, DB: db}, nil
}
