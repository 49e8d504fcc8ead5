package boarddto

import "time"

type ArchivedGame struct {
	ID           int64     `json:"id"`
	Source       string    `json:"source"`
	Result       string    `json:"result"`
	ResultMethod string    `json:"result_method,omitempty"`
	MovesUCI     []string  `json:"moves_uci"`
	MovesSAN     []string  `json:"moves_san"`
	PGN          string    `json:"pgn"`
	OpeningName  string    `json:"opening_name,omitempty"`
	OpeningECO   string    `json:"opening_eco,omitempty"`
	PlyCount     int       `json:"ply_count"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
}
