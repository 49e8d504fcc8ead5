package coach

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mkrv/chesscoach/internal/domain"
)

var ErrDuplicateGame = errors.New("archived game already exists")

type Repository interface {
	InsertGame(ctx context.Context, game *domain.ArchivedGame) (int64, error)
	GetRecentGames(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error)
	GetGame(ctx context.Context, id int64, sessionID string) (*domain.ArchivedGame, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertGame(ctx context.Context, game *domain.ArchivedGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil archived game payload")
	}

	movesUCI, err := json.Marshal(game.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(game.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO archived_games (
			game_uuid,
			session_id,
			source,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			opening_name,
			opening_eco,
			ply_count,
			started_at,
			ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (game_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		game.GameUUID,
		game.SessionID,
		game.Source,
		game.Result,
		game.ResultMethod,
		movesUCI,
		movesSAN,
		game.PGN,
		game.OpeningName,
		game.OpeningECO,
		game.PlyCount,
		game.StartedAt,
		game.EndedAt,
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert archived game: %w", err)
	}
	return id.Int64, nil
}

func (r *repository) GetRecentGames(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT
			id,
			game_uuid,
			session_id,
			source,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			opening_name,
			opening_eco,
			ply_count,
			started_at,
			ended_at
		FROM archived_games
		WHERE session_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("select archived games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.ArchivedGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows.Scan)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	return games, rows.Err()
}

func (r *repository) GetGame(ctx context.Context, id int64, sessionID string) (*domain.ArchivedGame, error) {
	const query = `
		SELECT
			id,
			game_uuid,
			session_id,
			source,
			result,
			result_method,
			moves_uci,
			moves_san,
			pgn,
			opening_name,
			opening_eco,
			ply_count,
			started_at,
			ended_at
		FROM archived_games
		WHERE id = $1 AND session_id = $2`

	game, err := scanGame(r.db.QueryRowContext(ctx, query, id, sessionID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return game, nil
}

func scanGame(scan func(...any) error) (*domain.ArchivedGame, error) {
	var (
		game         domain.ArchivedGame
		movesUCIJSON []byte
		movesSANJSON []byte
	)
	if err := scan(
		&game.ID,
		&game.GameUUID,
		&game.SessionID,
		&game.Source,
		&game.Result,
		&game.ResultMethod,
		&movesUCIJSON,
		&movesSANJSON,
		&game.PGN,
		&game.OpeningName,
		&game.OpeningECO,
		&game.PlyCount,
		&game.StartedAt,
		&game.EndedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan archived game: %w", err)
	}
	if err := json.Unmarshal(movesUCIJSON, &game.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &game, nil
}
