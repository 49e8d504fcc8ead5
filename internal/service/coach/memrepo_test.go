package coach

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mkrv/chesscoach/internal/domain"
)

func archivedFixture(sid string, endedAt time.Time) *domain.ArchivedGame {
	return &domain.ArchivedGame{
		GameUUID:  uuid.NewString(),
		SessionID: sid,
		Source:    domain.SourceLive,
		Result:    "1-0",
		MovesUCI:  []string{"e2e4", "e7e5"},
		MovesSAN:  []string{"e4", "e5"},
		PGN:       "1. e4 e5 *",
		PlyCount:  2,
		StartedAt: endedAt.Add(-time.Minute),
		EndedAt:   endedAt,
	}
}

func TestMemoryRepositoryInsertAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	sid := uuid.NewString()

	rec := archivedFixture(sid, time.Now())
	id, err := repo.InsertGame(ctx, rec)
	if err != nil {
		t.Fatalf("InsertGame: %v", err)
	}
	if id <= 0 {
		t.Fatalf("id = %d, want positive", id)
	}

	got, err := repo.GetGame(ctx, id, sid)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if got == nil || got.GameUUID != rec.GameUUID || got.Result != "1-0" {
		t.Fatalf("got = %+v", got)
	}

	other, err := repo.GetGame(ctx, id, uuid.NewString())
	if err != nil {
		t.Fatalf("GetGame foreign session: %v", err)
	}
	if other != nil {
		t.Fatal("game leaked across sessions")
	}
}

func TestMemoryRepositoryDuplicateUUID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	sid := uuid.NewString()

	rec := archivedFixture(sid, time.Now())
	if _, err := repo.InsertGame(ctx, rec); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	dup := archivedFixture(sid, time.Now())
	dup.GameUUID = rec.GameUUID
	if _, err := repo.InsertGame(ctx, dup); err != ErrDuplicateGame {
		t.Fatalf("err = %v, want ErrDuplicateGame", err)
	}

	games, err := repo.GetRecentGames(ctx, sid, 10)
	if err != nil {
		t.Fatalf("GetRecentGames: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("games = %d, want 1", len(games))
	}
}

func TestMemoryRepositoryRecentOrderAndLimit(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	sid := uuid.NewString()

	base := time.Now()
	var last string
	for i := 0; i < 4; i++ {
		rec := archivedFixture(sid, base.Add(time.Duration(i)*time.Minute))
		if _, err := repo.InsertGame(ctx, rec); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		last = rec.GameUUID
	}

	games, err := repo.GetRecentGames(ctx, sid, 2)
	if err != nil {
		t.Fatalf("GetRecentGames: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("games = %d, want 2", len(games))
	}
	if games[0].GameUUID != last {
		t.Fatalf("newest game not first: %+v", games[0])
	}
	if !games[0].EndedAt.After(games[1].EndedAt) {
		t.Fatal("order not newest-first")
	}
}

func TestMemoryRepositoryCopiesOut(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	sid := uuid.NewString()

	rec := archivedFixture(sid, time.Now())
	id, err := repo.InsertGame(ctx, rec)
	if err != nil {
		t.Fatalf("InsertGame: %v", err)
	}

	got, err := repo.GetGame(ctx, id, sid)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	got.Result = "0-1"

	again, err := repo.GetGame(ctx, id, sid)
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if again.Result != "1-0" {
		t.Fatal("stored record mutated through returned pointer")
	}
}
