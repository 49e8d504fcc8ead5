package boarddto

// AnalysisRecord carries the assembled coaching output for one position.
// Text is the joined display form; the remaining fields let clients render
// the components separately.
type AnalysisRecord struct {
	Opening     string `json:"opening,omitempty"`
	Evaluation  string `json:"evaluation,omitempty"`
	Narrative   string `json:"narrative,omitempty"`
	BestMoveUCI string `json:"best_move_uci,omitempty"`
	OpeningName string `json:"opening_name,omitempty"`
	OpeningECO  string `json:"opening_eco,omitempty"`
	Fallback    bool   `json:"fallback,omitempty"`
	Text        string `json:"text"`
}

// MoveOutcome summarises one move submission. OK=false with a Reason is the
// ignored-input outcome; State always reflects the board afterwards.
type MoveOutcome struct {
	OK            bool            `json:"ok"`
	Reason        string          `json:"reason,omitempty"`
	State         *SessionState   `json:"state"`
	PlayerSAN     string          `json:"player_san,omitempty"`
	PlayerUCI     string          `json:"player_uci,omitempty"`
	Finished      bool            `json:"finished,omitempty"`
	Outcome       string          `json:"outcome,omitempty"`
	EnginePending bool            `json:"engine_pending,omitempty"`
	Analysis      *AnalysisRecord `json:"analysis,omitempty"`
}

// OpOutcome summarises a non-move mutation (undo, resets, replay control).
type OpOutcome struct {
	OK      bool          `json:"ok"`
	Reason  string        `json:"reason,omitempty"`
	State   *SessionState `json:"state"`
	Removed int           `json:"removed,omitempty"`
}
