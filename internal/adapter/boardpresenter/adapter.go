package boardpresenter

import (
	"github.com/mkrv/chesscoach/internal/analysis"
	"github.com/mkrv/chesscoach/internal/domain"
	"github.com/mkrv/chesscoach/internal/service/coach"
	"github.com/mkrv/chesscoach/pkg/boarddto"
)

// ToDTOState converts a service snapshot into its wire form.
func ToDTOState(s *coach.Snapshot) *boarddto.SessionState {
	if s == nil {
		return nil
	}
	transcript := make([]boarddto.ChatLine, 0, len(s.Transcript))
	for _, entry := range s.Transcript {
		transcript = append(transcript, boarddto.ChatLine{
			Role: string(entry.Role),
			Text: entry.Text,
		})
	}
	return &boarddto.SessionState{
		SessionID:   s.SessionID,
		Mode:        string(s.Mode),
		FEN:         s.FEN,
		Cursor:      s.Cursor,
		MoveCount:   s.MoveCount,
		MovesSAN:    append([]string(nil), s.MovesSAN...),
		MovesUCI:    append([]string(nil), s.MovesUCI...),
		Orientation: s.Orientation,
		HumanColor:  s.HumanColor,
		SideToMove:  s.SideToMove,
		Busy:        s.Busy,
		GameOver:    s.GameOver,
		Outcome:     s.Outcome,
		Method:      s.Method,
		Transcript:  transcript,
		Resumed:     s.Resumed,
		UpdatedAt:   s.UpdatedAt,
	}
}

func ToDTOMove(m *coach.MoveSummary) *boarddto.MoveOutcome {
	if m == nil {
		return nil
	}
	return &boarddto.MoveOutcome{
		OK:            m.Applied,
		Reason:        m.Reason,
		State:         ToDTOState(m.Snapshot),
		PlayerSAN:     m.PlayerSAN,
		PlayerUCI:     m.PlayerUCI,
		Finished:      m.Finished,
		Outcome:       m.Outcome,
		EnginePending: m.EnginePending,
		Analysis:      ToDTOAnalysis(m.Analysis),
	}
}

func ToDTOOp(o *coach.OpResult) *boarddto.OpOutcome {
	if o == nil {
		return nil
	}
	return &boarddto.OpOutcome{
		OK:      o.Applied,
		Reason:  o.Reason,
		State:   ToDTOState(o.Snapshot),
		Removed: o.Removed,
	}
}

func ToDTOAnalysis(r *analysis.Record) *boarddto.AnalysisRecord {
	if r == nil {
		return nil
	}
	return &boarddto.AnalysisRecord{
		Opening:     r.Opening,
		Evaluation:  r.Evaluation,
		Narrative:   r.Narrative,
		BestMoveUCI: r.BestMoveUCI,
		OpeningName: r.OpeningName,
		OpeningECO:  r.OpeningECO,
		Fallback:    r.Fallback,
		Text:        analysis.FormatRecord(r),
	}
}

func ToDTOGame(g *domain.ArchivedGame) *boarddto.ArchivedGame {
	if g == nil {
		return nil
	}
	gg := *g
	return &boarddto.ArchivedGame{
		ID:           gg.ID,
		Source:       gg.Source,
		Result:       gg.Result,
		ResultMethod: gg.ResultMethod,
		MovesUCI:     append([]string(nil), gg.MovesUCI...),
		MovesSAN:     append([]string(nil), gg.MovesSAN...),
		PGN:          gg.PGN,
		OpeningName:  gg.OpeningName,
		OpeningECO:   gg.OpeningECO,
		PlyCount:     gg.PlyCount,
		StartedAt:    gg.StartedAt,
		EndedAt:      gg.EndedAt,
	}
}

func ToDTOGames(list []*domain.ArchivedGame) []*boarddto.ArchivedGame {
	out := make([]*boarddto.ArchivedGame, 0, len(list))
	for _, g := range list {
		if g == nil {
			continue
		}
		out = append(out, ToDTOGame(g))
	}
	return out
}
