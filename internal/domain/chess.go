package domain

import "time"

// Game source labels for archived records.
const (
	SourceLive     = "live"
	SourceEngine   = "engine"
	SourceImported = "import"
)

// ArchivedGame is one finished or imported game kept for later review.
// GameUUID identifies the game itself and deduplicates repeated writes.
type ArchivedGame struct {
	ID           int64
	GameUUID     string
	SessionID    string
	Source       string
	Result       string
	ResultMethod string
	MovesUCI     []string
	MovesSAN     []string
	PGN          string
	OpeningName  string
	OpeningECO   string
	PlyCount     int
	StartedAt    time.Time
	EndedAt      time.Time
}
