package coach

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mkrv/chesscoach/internal/domain"
)

// memrepo is the in-memory archive used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	gamesByID   map[int64]*domain.ArchivedGame
	gamesByUUID map[string]*domain.ArchivedGame
	bySession   map[string][]*domain.ArchivedGame
}

func NewMemoryRepository() Repository {
	return &memrepo{
		gamesByID:   make(map[int64]*domain.ArchivedGame),
		gamesByUUID: make(map[string]*domain.ArchivedGame),
		bySession:   make(map[string][]*domain.ArchivedGame),
	}
}

func (m *memrepo) InsertGame(_ context.Context, game *domain.ArchivedGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil game")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.gamesByUUID[game.GameUUID]; exists {
		return 0, ErrDuplicateGame
	}

	m.nextID++
	stored := *game
	stored.ID = m.nextID

	m.gamesByID[stored.ID] = &stored
	m.gamesByUUID[stored.GameUUID] = &stored
	m.bySession[stored.SessionID] = append(m.bySession[stored.SessionID], &stored)
	return stored.ID, nil
}

func (m *memrepo) GetRecentGames(_ context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.bySession[sessionID]
	if len(list) == 0 {
		return []*domain.ArchivedGame{}, nil
	}
	items := append([]*domain.ArchivedGame(nil), list...)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]*domain.ArchivedGame, 0, len(items))
	for _, g := range items {
		cp := *g
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memrepo) GetGame(_ context.Context, id int64, sessionID string) (*domain.ArchivedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.gamesByID[id]
	if !ok || g == nil || g.SessionID != sessionID {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}
