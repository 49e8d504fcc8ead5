package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	LichessEvalURL     string
	LichessExplorerURL string
	LichessTimeoutSec  int
	EvalMultiPV        int
	ExplorerSince      int
	ExplorerTopGames   int

	GeminiAPIKey   string
	GeminiBaseURL  string
	GeminiModel    string
	GeminiTimeout  int
	ResumeTTLSec   int
	EvalCacheTTL   int
	HistoryLimit   int
	MsgOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		LichessEvalURL:     "https://lichess.org/api/cloud-eval",
		LichessExplorerURL: "https://explorer.lichess.ovh/masters",
		LichessTimeoutSec:  6,
		EvalMultiPV:        3,
		ExplorerSince:      1952,
		ExplorerTopGames:   2,
		GeminiBaseURL:      "https://generativelanguage.googleapis.com",
		GeminiModel:        "gemini-1.5-flash",
		GeminiTimeout:      20,
		ResumeTTLSec:       86400,
		EvalCacheTTL:       600,
		HistoryLimit:       10,
	}

	if v := strings.TrimSpace(os.Getenv("COACH_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("LICHESS_EVAL_URL")); v != "" {
		cfg.LichessEvalURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LICHESS_EXPLORER_URL")); v != "" {
		cfg.LichessExplorerURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LICHESS_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LichessTimeoutSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EVAL_MULTI_PV")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EvalMultiPV = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EXPLORER_SINCE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ExplorerSince = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EXPLORER_TOP_GAMES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ExplorerTopGames = n
		}
	}

	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if v := strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")); v != "" {
		cfg.GeminiBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_MODEL")); v != "" {
		cfg.GeminiModel = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GeminiTimeout = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("RESUME_TTL")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ResumeTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EVAL_CACHE_TTL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EvalCacheTTL = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("HISTORY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryLimit = n
		}
	}
	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
