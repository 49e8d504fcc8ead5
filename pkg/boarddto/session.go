package boarddto

import "time"

type ChatLine struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// SessionState is the wire form of a session snapshot. It is the body of
// state reads and the payload pushed to websocket subscribers.
type SessionState struct {
	SessionID   string     `json:"session_id"`
	Mode        string     `json:"mode"`
	FEN         string     `json:"fen"`
	Cursor      int        `json:"cursor"`
	MoveCount   int        `json:"move_count"`
	MovesSAN    []string   `json:"moves_san"`
	MovesUCI    []string   `json:"moves_uci"`
	Orientation string     `json:"orientation"`
	HumanColor  string     `json:"human_color"`
	SideToMove  string     `json:"side_to_move"`
	Busy        bool       `json:"busy"`
	GameOver    bool       `json:"game_over"`
	Outcome     string     `json:"outcome"`
	Method      string     `json:"method,omitempty"`
	Transcript  []ChatLine `json:"transcript,omitempty"`
	Resumed     bool       `json:"resumed,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
