package boarddto

type CreateSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type EngineColorRequest struct {
	Color string `json:"color,omitempty"`
}

type ImportRequest struct {
	PGN string `json:"pgn"`
}

type NavigateRequest struct {
	Index int `json:"index"`
}

type AnalyzeResponse struct {
	State    *SessionState   `json:"state"`
	Analysis *AnalysisRecord `json:"analysis"`
}

type HistoryResponse struct {
	Games []*ArchivedGame `json:"games"`
}

type GameResponse struct {
	Game *ArchivedGame `json:"game"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}
