package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mkrv/chesscoach/internal/lichess"
	"github.com/mkrv/chesscoach/internal/llm"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func main() {
	evalURL := envDefault("LICHESS_EVAL_URL", "https://lichess.org/api/cloud-eval")
	explorerURL := envDefault("LICHESS_EXPLORER_URL", "https://explorer.lichess.ovh/masters")
	geminiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	geminiBase := envDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	geminiModel := envDefault("GEMINI_MODEL", "gemini-1.5-flash")

	evalClient := lichess.NewEvalClient(evalURL, lichess.WithTimeout(8*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ev, err := evalClient.Evaluate(ctx, startFEN, 1)
	if err != nil {
		log.Printf("cloud-eval error: %v", err)
	} else {
		best, _ := ev.BestMove()
		log.Printf("cloud-eval ok: depth=%d knodes=%d best=%s", ev.Depth, ev.KNodes, best)
	}

	explorer := lichess.NewExplorerClient(explorerURL, lichess.WithTimeout(8*time.Second))
	ectx, ecancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ecancel()
	res, err := explorer.Lookup(ectx, lichess.ExplorerQuery{Play: []string{"e2e4"}})
	if err != nil {
		log.Printf("explorer error: %v", err)
	} else {
		name := "?"
		if res.Opening != nil {
			name = res.Opening.Name
		}
		log.Printf("explorer ok: games=%d opening=%s", res.TotalGames(), name)
	}

	if geminiKey == "" {
		log.Println("GEMINI_API_KEY not set; skipping narrative check")
		return
	}
	if !llm.ValidateKeyFormat(geminiKey) {
		log.Println("GEMINI_API_KEY has an unexpected format; coachd would run without commentary")
		return
	}
	narrator := llm.NewClient(geminiBase, geminiModel, geminiKey, llm.WithTimeout(15*time.Second))
	nctx, ncancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer ncancel()
	text, err := narrator.Generate(nctx, "Reply with the single word: ready.")
	if err != nil {
		log.Printf("narrative error: %v", err)
		return
	}
	log.Printf("narrative ok: %q", firstLine(text))
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
