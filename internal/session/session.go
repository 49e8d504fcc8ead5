package session

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
)

// Mode is the single session mode discriminator. Exactly one value holds at
// a time, which makes the mutual-exclusion rule between engine play, chat
// annotation and replay structural.
type Mode string

const (
	ModeLive           Mode = "live"
	ModeEngineOpponent Mode = "engine"
	ModeChatAnnotated  Mode = "chat"
	ModePgnReplay      Mode = "replay"
)

// Role classifies a chat transcript entry.
type Role string

const (
	RolePlayer Role = "player"
	RoleAI     Role = "ai"
	RoleUser   Role = "user"
)

// ChatEntry is one transcript line.
type ChatEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

var (
	ErrReplayReadOnly = errors.New("replay mode is read-only")
	ErrNotYourTurn    = errors.New("not the human side's turn")
	ErrIllegalMove    = errors.New("illegal move")
	ErrGameFinished   = errors.New("game already finished")
	ErrInvalidPGN     = errors.New("invalid pgn")
)

// Session is the game session state machine: canonical position, move log,
// SAN history, replay cursor, mode and chat transcript. Methods are not safe
// for concurrent use; callers serialize access.
type Session struct {
	mode        Mode
	game        *nchess.Game
	moveUCIs    []string
	moveSANs    []string
	cursor      int
	humanColor  nchess.Color
	orientation nchess.Color
	originalPGN string
	transcript  []ChatEntry
	generation  string
}

// MoveResult reports one applied ply.
type MoveResult struct {
	SAN      string
	UCI      string
	Color    nchess.Color
	GameOver bool
	Outcome  string
}

// New returns a fresh session in Live mode with an empty move log.
func New() *Session {
	s := &Session{}
	s.StartNewGame()
	return s
}

// StartNewGame resets the move log, SAN history, transcript, cursor,
// orientation and color assignment, and returns the session to Live mode.
func (s *Session) StartNewGame() {
	s.resetGame()
	s.mode = ModeLive
}

func (s *Session) resetGame() {
	s.game = nchess.NewGame()
	s.moveUCIs = nil
	s.moveSANs = nil
	s.cursor = -1
	s.humanColor = nchess.White
	s.orientation = nchess.White
	s.originalPGN = ""
	s.transcript = nil
	s.generation = uuid.NewString()
}

// SubmitMove applies a human move given as source and destination squares
// with an optional promotion piece. A pawn reaching the last rank without an
// explicit promotion choice promotes to a queen. Rejections leave the
// session untouched.
func (s *Session) SubmitMove(from, to, promotion string) (MoveResult, error) {
	if s.mode == ModePgnReplay {
		return MoveResult{}, ErrReplayReadOnly
	}
	if s.game.Outcome() != nchess.NoOutcome {
		return MoveResult{}, ErrGameFinished
	}

	pos := s.game.Position()
	if s.mode == ModeEngineOpponent && pos.Turn() != s.humanColor {
		return MoveResult{}, ErrNotYourTurn
	}

	fromSq, ok := parseSquare(from)
	if !ok {
		return MoveResult{}, fmt.Errorf("%w: bad square %q", ErrIllegalMove, from)
	}
	toSq, ok := parseSquare(to)
	if !ok {
		return MoveResult{}, fmt.Errorf("%w: bad square %q", ErrIllegalMove, to)
	}

	promo := normalizePromotion(promotion)
	if promo == "" && needsPromotion(pos, fromSq, toSq) {
		promo = "q"
	}

	return s.applyUCI(strings.ToLower(from) + strings.ToLower(to) + promo)
}

// ApplyEngineMove verifies an engine suggestion in UCI form against the
// current position and applies it with the same append semantics as
// SubmitMove.
func (s *Session) ApplyEngineMove(uci string) (MoveResult, error) {
	if s.mode == ModePgnReplay {
		return MoveResult{}, ErrReplayReadOnly
	}
	if s.game.Outcome() != nchess.NoOutcome {
		return MoveResult{}, ErrGameFinished
	}
	return s.applyUCI(strings.ToLower(strings.TrimSpace(uci)))
}

func (s *Session) applyUCI(uci string) (MoveResult, error) {
	pos := s.game.Position()
	notationSAN := nchess.AlgebraicNotation{}
	notationUCI := nchess.UCINotation{}

	move, err := notationUCI.Decode(pos, uci)
	if err != nil {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	san := notationSAN.Encode(pos, move)
	color := pos.Turn()
	if err := s.game.Move(move, nil); err != nil {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}

	s.moveUCIs = append(s.moveUCIs, strings.ToLower(notationUCI.Encode(pos, move)))
	s.moveSANs = append(s.moveSANs, san)
	s.cursor = len(s.moveSANs) - 1

	res := MoveResult{SAN: san, UCI: s.moveUCIs[len(s.moveUCIs)-1], Color: color}
	if s.game.Outcome() != nchess.NoOutcome {
		res.GameOver = true
		res.Outcome = string(s.game.Outcome())
	}
	return res, nil
}

// UndoLastMove removes the last ply, or the last two plies as one unit in
// engine-opponent mode so the human move and the automatic reply are undone
// together. Returns the number of plies removed; zero means no-op (empty
// log, replay mode, or a lone engine ply in engine-opponent mode).
func (s *Session) UndoLastMove() int {
	if s.mode == ModePgnReplay || len(s.moveUCIs) == 0 {
		return 0
	}
	n := 1
	if s.mode == ModeEngineOpponent {
		if len(s.moveUCIs) < 2 {
			return 0
		}
		n = 2
	}

	remaining := s.moveUCIs[:len(s.moveUCIs)-n]
	game, err := rebuildGame(remaining)
	if err != nil {
		// The retained prefix was produced by this session, so a rebuild
		// failure means internal corruption; keep the current state.
		return 0
	}
	s.game = game
	s.moveUCIs = remaining
	s.moveSANs = s.moveSANs[:len(s.moveSANs)-n]
	s.cursor = len(s.moveSANs) - 1
	return n
}

// EnterEngineOpponentMode starts a fresh engine-opponent game with the human
// playing the given color. Board orientation follows the chosen color. The
// caller is responsible for requesting the engine's first move when the
// human plays Black.
func (s *Session) EnterEngineOpponentMode(human nchess.Color) {
	s.resetGame()
	s.mode = ModeEngineOpponent
	s.humanColor = human
	s.orientation = human
}

// ToggleChatAnnotatedMode flips between chat-annotated play and live play.
// Either direction starts a fresh game.
func (s *Session) ToggleChatAnnotatedMode() {
	entering := s.mode != ModeChatAnnotated
	s.resetGame()
	if entering {
		s.mode = ModeChatAnnotated
	} else {
		s.mode = ModeLive
	}
}

// ImportReplay parses a PGN document and enters read-only replay mode with
// every per-ply position cached and the cursor on the final ply. A parse
// failure leaves the session completely unchanged.
func (s *Session) ImportReplay(pgnText string) error {
	game, ucis, sans, err := parsePGN(pgnText)
	if err != nil {
		return err
	}
	s.installReplay(game, ucis, sans, strings.TrimSpace(pgnText))
	s.cursor = len(sans) - 1
	return nil
}

// RestoreFromPersistedState is ImportReplay with the cursor restored to a
// previously persisted value, clamped into range.
func (s *Session) RestoreFromPersistedState(pgnText string, cursor int) error {
	game, ucis, sans, err := parsePGN(pgnText)
	if err != nil {
		return err
	}
	s.installReplay(game, ucis, sans, strings.TrimSpace(pgnText))
	s.cursor = clampCursor(cursor, len(sans))
	return nil
}

func (s *Session) installReplay(game *nchess.Game, ucis, sans []string, original string) {
	s.game = game
	s.moveUCIs = ucis
	s.moveSANs = sans
	s.mode = ModePgnReplay
	s.humanColor = nchess.White
	s.orientation = nchess.White
	s.originalPGN = original
	s.transcript = nil
	s.generation = uuid.NewString()
}

// NavigateTo moves the replay cursor. Out-of-range indexes are clamped, not
// rejected. Returns the cursor after the move.
func (s *Session) NavigateTo(index int) int {
	s.cursor = clampCursor(index, len(s.moveSANs))
	return s.cursor
}

// ExitReplay drops the imported game and starts a fresh Live session.
func (s *Session) ExitReplay() {
	s.StartNewGame()
}

// AppendTranscript adds one chat entry.
func (s *Session) AppendTranscript(role Role, text string) {
	s.transcript = append(s.transcript, ChatEntry{Role: role, Text: text})
}

// Mode returns the active session mode.
func (s *Session) Mode() Mode { return s.mode }

// Cursor returns the replay cursor, -1 meaning the starting position.
func (s *Session) Cursor() int { return s.cursor }

// MoveCount returns the number of plies in the move log.
func (s *Session) MoveCount() int { return len(s.moveSANs) }

// CurrentPosition returns the position selected by the cursor.
func (s *Session) CurrentPosition() *nchess.Position {
	return s.game.Positions()[s.cursor+1]
}

// TerminalPosition returns the position after the last logged ply.
func (s *Session) TerminalPosition() *nchess.Position {
	return s.game.Position()
}

// FEN returns the cursor position in FEN form.
func (s *Session) FEN() string { return s.CurrentPosition().String() }

// SANHistory returns a copy of the SAN move history.
func (s *Session) SANHistory() []string {
	return append([]string(nil), s.moveSANs...)
}

// UCIHistory returns a copy of the move history in UCI form.
func (s *Session) UCIHistory() []string {
	return append([]string(nil), s.moveUCIs...)
}

// Transcript returns a copy of the chat transcript.
func (s *Session) Transcript() []ChatEntry {
	return append([]ChatEntry(nil), s.transcript...)
}

// SideToMove reports whose turn it is at the terminal position.
func (s *Session) SideToMove() nchess.Color { return s.game.Position().Turn() }

// HumanColor reports the side assigned to the human in engine-opponent mode.
func (s *Session) HumanColor() nchess.Color { return s.humanColor }

// Orientation reports which side faces the viewer.
func (s *Session) Orientation() nchess.Color { return s.orientation }

// OriginalPGN returns the imported document, empty outside replay mode.
func (s *Session) OriginalPGN() string { return s.originalPGN }

// Generation identifies the current move-log lifetime. It rotates whenever
// the log is replaced, letting callers detect and drop stale async results.
func (s *Session) Generation() string { return s.generation }

// GameOver reports whether the terminal position ends the game.
func (s *Session) GameOver() bool { return s.game.Outcome() != nchess.NoOutcome }

// Outcome returns the game result token, "*" while undecided.
func (s *Session) Outcome() string { return string(s.game.Outcome()) }

// Method returns the termination method when the game is over.
func (s *Session) Method() nchess.Method { return s.game.Method() }

func clampCursor(index, logLen int) int {
	if index < -1 {
		return -1
	}
	if index > logLen-1 {
		return logLen - 1
	}
	return index
}

func parseSquare(s string) (nchess.Square, bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	if len(t) != 2 {
		return nchess.NoSquare, false
	}
	if t[0] < 'a' || t[0] > 'h' || t[1] < '1' || t[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(t[0]-'a'), nchess.Rank(t[1]-'1')), true
}

func normalizePromotion(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "q", "queen":
		return "q"
	case "r", "rook":
		return "r"
	case "b", "bishop":
		return "b"
	case "n", "knight":
		return "n"
	default:
		return ""
	}
}

func needsPromotion(pos *nchess.Position, from, to nchess.Square) bool {
	piece := pos.Board().Piece(from)
	if piece == nchess.NoPiece || piece.Type() != nchess.Pawn {
		return false
	}
	switch pos.Turn() {
	case nchess.White:
		return to.Rank() == nchess.Rank8
	case nchess.Black:
		return to.Rank() == nchess.Rank1
	}
	return false
}

func rebuildGame(ucis []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, mv := range ucis {
		move, err := notation.Decode(game.Position(), mv)
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", mv, err)
		}
		if err := game.Move(move, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", mv, err)
		}
	}
	return game, nil
}
