package lichess

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestEvalClient_DecodesStoredEvaluation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("multiPv"); got != "3" {
			t.Errorf("multiPv = %q, want 3", got)
		}
		if got := r.URL.Query().Get("fen"); got == "" {
			t.Errorf("missing fen parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"fen":"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",` +
			`"knodes":13683,"depth":52,"pvs":[{"moves":"e2e4 c7c5 g1f3","cp":18},{"moves":"d2d4 g8f6","cp":15}]}`))
	}))
	defer srv.Close()

	c := NewEvalClient(srv.URL, WithTimeout(2*time.Second))
	eval, err := c.Evaluate(context.Background(), "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", 3)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Depth != 52 || len(eval.PVs) != 2 {
		t.Fatalf("unexpected eval: %+v", eval)
	}
	if eval.PVs[0].CP == nil || *eval.PVs[0].CP != 18 || eval.PVs[0].Mate != nil {
		t.Fatalf("top pv decoded wrong: %+v", eval.PVs[0])
	}
	best, ok := eval.BestMove()
	if !ok || best != "e2e4" {
		t.Fatalf("BestMove = %q/%v", best, ok)
	}
}

func TestEvalClient_NotFoundIsEmptyOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewEvalClient(srv.URL, WithTimeout(2*time.Second))
	_, err := c.Evaluate(context.Background(), "8/8/8/8/8/8/8/K6k w - - 0 1", 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEvalClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"depth":30,"pvs":[{"moves":"d2d4","cp":10}]}`))
	}))
	defer srv.Close()

	c := NewEvalClient(srv.URL, WithTimeout(2*time.Second), WithRetry(3))
	eval, err := c.Evaluate(context.Background(), "fen", 1)
	if err != nil {
		t.Fatalf("Evaluate after retry: %v", err)
	}
	if eval.Depth != 30 {
		t.Fatalf("unexpected eval: %+v", eval)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("server hit %d times, want 2", got)
	}
}

func TestEvalClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewEvalClient(srv.URL, WithTimeout(2*time.Second), WithRetry(3))
	if _, err := c.Evaluate(context.Background(), "fen", 1); err == nil {
		t.Fatalf("expected error on 429")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("429 retried %d times, want a single attempt", got)
	}
}

func TestExplorerClient_DecodesMastersLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("play"); got != "e2e4,c7c5" {
			t.Errorf("play = %q", got)
		}
		if got := q.Get("since"); got != "1952" {
			t.Errorf("since = %q", got)
		}
		if got := q.Get("topGames"); got != "2" {
			t.Errorf("topGames = %q", got)
		}
		w.Write([]byte(`{"white":398,"draws":754,"black":277,` +
			`"opening":{"eco":"B20","name":"Sicilian Defense"},` +
			`"moves":[{"uci":"g1f3","san":"Nf3","averageRating":2609,"white":240,"draws":437,"black":162}],` +
			`"topGames":[{"id":"abc","winner":"white","year":1999,` +
			`"white":{"name":"Kasparov, G.","rating":2851},"black":{"name":"Topalov, V.","rating":2690}}]}`))
	}))
	defer srv.Close()

	c := NewExplorerClient(srv.URL, WithTimeout(2*time.Second))
	res, err := c.Lookup(context.Background(), ExplorerQuery{
		Play:     []string{"e2e4", "c7c5"},
		Since:    1952,
		TopGames: 2,
	})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Opening == nil || res.Opening.ECO != "B20" || res.Opening.Name != "Sicilian Defense" {
		t.Fatalf("opening decoded wrong: %+v", res.Opening)
	}
	if res.TotalGames() != 398+754+277 {
		t.Fatalf("TotalGames = %d", res.TotalGames())
	}
	if len(res.Moves) != 1 || res.Moves[0].SAN != "Nf3" {
		t.Fatalf("continuations decoded wrong: %+v", res.Moves)
	}
	if len(res.TopGames) != 1 || res.TopGames[0].White.Name != "Kasparov, G." {
		t.Fatalf("top games decoded wrong: %+v", res.TopGames)
	}
}

func TestExplorerClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewExplorerClient(srv.URL, WithTimeout(2*time.Second))
	if _, err := c.Lookup(context.Background(), ExplorerQuery{Play: []string{"h2h3"}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
