package session

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
)

// ExportFilename is the fixed name offered for downloaded game records.
const ExportFilename = "chess_game.pgn"

const startposFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// parsePGN loads one movetext document through the rules library and derives
// the aligned UCI and SAN histories from its eager position list.
func parsePGN(text string) (*nchess.Game, []string, []string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil, nil, ErrInvalidPGN
	}
	opt, err := nchess.PGN(strings.NewReader(trimmed))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidPGN, err)
	}
	game := nchess.NewGame(opt)

	moves := game.Moves()
	positions := game.Positions()
	notationSAN := nchess.AlgebraicNotation{}
	notationUCI := nchess.UCINotation{}
	ucis := make([]string, 0, len(moves))
	sans := make([]string, 0, len(moves))
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		ucis = append(ucis, strings.ToLower(notationUCI.Encode(positions[i], mv)))
		sans = append(sans, notationSAN.Encode(positions[i], mv))
	}
	return game, ucis, sans, nil
}

// ExportPGN serializes the move log up to the cursor as one movetext
// document. The result token is only attached when the cursor sits on the
// final ply of a decided game.
func (s *Session) ExportPGN() string {
	sans := s.moveSANs[:s.cursor+1]

	result := "*"
	if s.cursor == len(s.moveSANs)-1 && s.GameOver() {
		result = s.Outcome()
	}

	var b strings.Builder
	now := time.Now()
	b.WriteString("[Event \"Casual game\"]\n")
	b.WriteString("[Site \"chesscoach\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", now.Year(), int(now.Month()), now.Day()))
	if start := s.game.Positions()[0].String(); start != startposFEN {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", sanitizeTag(start)))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(sans); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(sans[i])))
		if i+1 < len(sans) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(sans[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizeTag(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
