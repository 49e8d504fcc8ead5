package coach

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkrv/chesscoach/internal/analysis"
	"github.com/mkrv/chesscoach/internal/domain"
	"github.com/mkrv/chesscoach/internal/lichess"
	"github.com/mkrv/chesscoach/internal/msgcat"
	"github.com/mkrv/chesscoach/internal/service/cache"
	"github.com/mkrv/chesscoach/internal/session"
)

const (
	maxHistoryLimit    = 50
	engineReplyTimeout = 15 * time.Second
	subscriberBuffer   = 8
)

// Reasons reported for inputs that were ignored rather than failed.
const (
	ReasonReplayReadOnly    = "replay_readonly"
	ReasonNotYourTurn       = "not_your_turn"
	ReasonIllegalMove       = "illegal_move"
	ReasonGameFinished      = "game_finished"
	ReasonEngineThinking    = "engine_thinking"
	ReasonNothingToUndo     = "nothing_to_undo"
	ReasonNotInReplay       = "not_in_replay"
	ReasonEngineUnavailable = "engine_unavailable"
)

var ErrSessionNotFound = errors.New("session not found")

// Analyzer assembles analysis records for a position.
type Analyzer interface {
	Assemble(ctx context.Context, req analysis.Request) *analysis.Record
}

type Config struct {
	ResumeTTL    time.Duration
	HistoryLimit int
}

// Service owns the in-memory session registry and orchestrates the state
// machine, the external collaborators, persisted resume state and the game
// archive. All mutations of one session are serialized by its entry mutex;
// remote calls run outside it.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*liveSession

	evaluator evaluator
	analyzer  Analyzer
	cache     *cache.CacheService
	repo      Repository
	messages  *msgcat.Catalog
	cfg       Config
	logger    *zap.Logger
}

type liveSession struct {
	id      string
	started time.Time

	mu      sync.Mutex
	sess    *session.Session
	busy    bool
	resumed bool

	lastSeen atomic.Int64

	subMu   sync.Mutex
	subs    map[int]chan *Snapshot
	nextSub int
}

// Snapshot is the immutable state copy published to readers and websocket
// subscribers.
type Snapshot struct {
	SessionID   string
	Mode        session.Mode
	FEN         string
	Cursor      int
	MoveCount   int
	MovesSAN    []string
	MovesUCI    []string
	Orientation string
	HumanColor  string
	SideToMove  string
	Busy        bool
	GameOver    bool
	Outcome     string
	Method      string
	Transcript  []session.ChatEntry
	Resumed     bool
	UpdatedAt   time.Time
}

// OpResult reports one mutation attempt. Applied=false with a Reason is the
// silent-no-op outcome; the snapshot always reflects the state afterwards.
type OpResult struct {
	Snapshot *Snapshot
	Applied  bool
	Reason   string
	Removed  int
}

// MoveSummary extends OpResult for move submissions.
type MoveSummary struct {
	Snapshot      *Snapshot
	Applied       bool
	Reason        string
	PlayerSAN     string
	PlayerUCI     string
	Finished      bool
	Outcome       string
	EnginePending bool
	Analysis      *analysis.Record
}

func NewService(eval evaluator, analyzer Analyzer, cacheSvc *cache.CacheService, repo Repository, messages *msgcat.Catalog, cfg Config, logger *zap.Logger) (*Service, error) {
	if eval == nil {
		return nil, fmt.Errorf("position evaluator is required")
	}
	if analyzer == nil {
		return nil, fmt.Errorf("analysis assembler is required")
	}
	if cacheSvc == nil {
		return nil, fmt.Errorf("cache service is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("archive repository is required")
	}
	if messages == nil {
		return nil, fmt.Errorf("message catalog is required")
	}
	if cfg.ResumeTTL <= 0 {
		cfg.ResumeTTL = 10 * time.Minute
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > maxHistoryLimit {
		cfg.HistoryLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions:  make(map[string]*liveSession),
		evaluator: eval,
		analyzer:  analyzer,
		cache:     cacheSvc,
		repo:      repo,
		messages:  messages,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Attach returns the session for id, creating it when absent. A fresh
// session first tries to restore persisted replay state; corrupt entries are
// discarded and the session starts Live.
func (s *Service) Attach(ctx context.Context, sessionID string) (*Snapshot, error) {
	sid := normalizeSessionID(sessionID)

	s.mu.Lock()
	ls, ok := s.sessions[sid]
	if !ok {
		ls = &liveSession{
			id:      sid,
			started: time.Now(),
			sess:    session.New(),
			subs:    make(map[int]chan *Snapshot),
		}
		ls.touch()
		s.sessions[sid] = ls
	}
	s.mu.Unlock()

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if !ok {
		s.restoreLocked(ctx, ls)
	}
	ls.touch()
	return s.snapshotLocked(ls), nil
}

func (s *Service) restoreLocked(ctx context.Context, ls *liveSession) {
	pgn, found, err := s.cache.GetString(ctx, resumePGNKey(ls.id))
	if err != nil {
		s.logger.Warn("resume state read failed", zap.String("session_id", ls.id), zap.Error(err))
		return
	}
	if !found || strings.TrimSpace(pgn) == "" {
		return
	}

	cursor := -1
	if raw, ok, cerr := s.cache.GetString(ctx, resumeCursorKey(ls.id)); cerr == nil && ok {
		if n, perr := strconv.Atoi(strings.TrimSpace(raw)); perr == nil {
			cursor = n
		} else {
			s.logger.Warn("resume cursor unreadable, defaulting to start",
				zap.String("session_id", ls.id), zap.String("raw", raw))
		}
	}

	if rerr := ls.sess.RestoreFromPersistedState(pgn, cursor); rerr != nil {
		s.logger.Warn("corrupt resume state discarded",
			zap.String("session_id", ls.id), zap.Error(rerr))
		s.clearResume(ctx, ls.id)
		return
	}
	ls.resumed = true
	s.logger.Info("replay session restored",
		zap.String("session_id", ls.id), zap.Int("cursor", ls.sess.Cursor()))
}

// SubmitMove applies a human move. In chat-annotated mode the move is
// annotated synchronously; in engine-opponent mode the reply is dispatched
// asynchronously and the busy flag stays up until it lands.
func (s *Service) SubmitMove(ctx context.Context, sessionID, from, to, promotion string) (*MoveSummary, error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	if ls.busy {
		out := &MoveSummary{Snapshot: s.snapshotLocked(ls), Reason: ReasonEngineThinking}
		ls.mu.Unlock()
		return out, nil
	}

	res, merr := ls.sess.SubmitMove(from, to, promotion)
	if merr != nil {
		out := &MoveSummary{Snapshot: s.snapshotLocked(ls), Reason: rejectReason(merr)}
		ls.mu.Unlock()
		s.logger.Debug("move rejected",
			zap.String("session_id", ls.id),
			zap.String("from", from), zap.String("to", to),
			zap.String("reason", out.Reason))
		return out, nil
	}
	ls.touch()
	ls.resumed = false

	out := &MoveSummary{
		Applied:   true,
		PlayerSAN: res.SAN,
		PlayerUCI: res.UCI,
		Finished:  res.GameOver,
		Outcome:   res.Outcome,
	}

	mode := ls.sess.Mode()
	if mode == session.ModeChatAnnotated {
		ls.sess.AppendTranscript(session.RolePlayer, s.messages.MustRender("chat.player_move", map[string]any{
			"Color": colorLabel(res.Color),
			"San":   res.SAN,
		}))
	}

	var archived *domain.ArchivedGame
	if res.GameOver {
		archived = s.archiveRecordLocked(ls, sourceForMode(mode))
	}

	var tag, replyFEN string
	if mode == session.ModeEngineOpponent && !res.GameOver && ls.sess.SideToMove() != ls.sess.HumanColor() {
		ls.busy = true
		tag = ls.sess.Generation()
		replyFEN = ls.sess.TerminalPosition().String()
		out.EnginePending = true
	}

	var chatReq *analysis.Request
	var chatTag string
	if mode == session.ModeChatAnnotated {
		chatTag = ls.sess.Generation()
		req := s.analysisRequestLocked(ls)
		chatReq = &req
	}

	out.Snapshot = s.snapshotLocked(ls)
	ls.mu.Unlock()

	s.insertArchive(ctx, archived)
	s.publish(ls, out.Snapshot)

	if tag != "" {
		go s.engineReply(ls.id, tag, replyFEN)
	}

	if chatReq != nil {
		out.Analysis = s.annotate(ctx, ls, chatTag, *chatReq)
		ls.mu.Lock()
		out.Snapshot = s.snapshotLocked(ls)
		ls.mu.Unlock()
		s.publish(ls, out.Snapshot)
	}
	return out, nil
}

// annotate runs the assembler outside the session lock and appends the ai
// transcript entry if the game generation is unchanged when it finishes.
func (s *Service) annotate(ctx context.Context, ls *liveSession, tag string, req analysis.Request) *analysis.Record {
	rec := s.analyzer.Assemble(ctx, req)
	text := analysis.FormatRecord(rec)
	if text == "" {
		text = s.messages.MustRender("analysis.apology", nil)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.sess.Generation() != tag {
		s.logger.Debug("stale annotation discarded", zap.String("session_id", ls.id))
		return rec
	}
	ls.sess.AppendTranscript(session.RoleAI, text)
	return rec
}

// RequestEngineMove evaluates the terminal position and applies the top
// suggestion as an engine move. No suggestion is a silent stall.
func (s *Service) RequestEngineMove(ctx context.Context, sessionID string) (*MoveSummary, error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	if ls.busy {
		out := &MoveSummary{Snapshot: s.snapshotLocked(ls), Reason: ReasonEngineThinking}
		ls.mu.Unlock()
		return out, nil
	}
	if ls.sess.Mode() == session.ModePgnReplay {
		out := &MoveSummary{Snapshot: s.snapshotLocked(ls), Reason: ReasonReplayReadOnly}
		ls.mu.Unlock()
		return out, nil
	}
	if ls.sess.GameOver() {
		out := &MoveSummary{Snapshot: s.snapshotLocked(ls), Reason: ReasonGameFinished}
		ls.mu.Unlock()
		return out, nil
	}
	ls.busy = true
	tag := ls.sess.Generation()
	fen := ls.sess.TerminalPosition().String()
	ls.mu.Unlock()

	return s.applyEngineBest(ctx, ls, tag, fen), nil
}

// engineReply is the asynchronous continuation after a human move in
// engine-opponent mode. It runs detached from the request context.
func (s *Service) engineReply(sessionID, tag, fen string) {
	ctx, cancel := context.WithTimeout(context.Background(), engineReplyTimeout)
	defer cancel()

	ls, err := s.getSession(sessionID)
	if err != nil {
		return
	}
	s.applyEngineBest(ctx, ls, tag, fen)
}

// applyEngineBest queries the evaluator, re-validates the suggestion against
// the rules game and applies it. The caller must have set the busy flag; it
// is always cleared here. The reply is discarded when the generation tag no
// longer matches.
func (s *Service) applyEngineBest(ctx context.Context, ls *liveSession, tag, fen string) *MoveSummary {
	res, err := s.evaluator.Evaluate(ctx, fen, 1)

	var best string
	if err == nil {
		best, _ = res.BestMove()
	}

	ls.mu.Lock()
	ls.busy = false

	if ls.sess.Generation() != tag {
		snap := s.snapshotLocked(ls)
		ls.mu.Unlock()
		s.logger.Debug("stale engine reply discarded", zap.String("session_id", ls.id))
		s.publish(ls, snap)
		return &MoveSummary{Snapshot: snap, Reason: ReasonEngineUnavailable}
	}
	if err != nil || best == "" {
		snap := s.snapshotLocked(ls)
		ls.mu.Unlock()
		if errors.Is(err, lichess.ErrNotFound) {
			s.logger.Debug("position outside the cloud database", zap.String("session_id", ls.id))
		} else {
			s.logger.Warn("engine suggestion unavailable",
				zap.String("session_id", ls.id), zap.Error(err))
		}
		s.publish(ls, snap)
		return &MoveSummary{Snapshot: snap, Reason: ReasonEngineUnavailable}
	}

	mr, aerr := ls.sess.ApplyEngineMove(best)
	if aerr != nil {
		snap := s.snapshotLocked(ls)
		ls.mu.Unlock()
		s.logger.Warn("engine suggestion rejected by rules",
			zap.String("session_id", ls.id), zap.String("uci", best), zap.Error(aerr))
		s.publish(ls, snap)
		return &MoveSummary{Snapshot: snap, Reason: ReasonEngineUnavailable}
	}
	ls.touch()

	out := &MoveSummary{
		Applied:   true,
		PlayerSAN: mr.SAN,
		PlayerUCI: mr.UCI,
		Finished:  mr.GameOver,
		Outcome:   mr.Outcome,
	}

	var archived *domain.ArchivedGame
	if mr.GameOver {
		archived = s.archiveRecordLocked(ls, domain.SourceEngine)
	}
	snap := s.snapshotLocked(ls)
	ls.mu.Unlock()

	s.insertArchive(ctx, archived)
	s.publish(ls, snap)
	out.Snapshot = snap
	return out
}

// Undo removes the last ply, or the last human/engine pair as one unit in
// engine-opponent mode.
func (s *Service) Undo(ctx context.Context, sessionID string) (*OpResult, error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	if ls.busy {
		out := &OpResult{Snapshot: s.snapshotLocked(ls), Reason: ReasonEngineThinking}
		ls.mu.Unlock()
		return out, nil
	}

	removed := ls.sess.UndoLastMove()
	if removed == 0 {
		reason := ReasonNothingToUndo
		if ls.sess.Mode() == session.ModePgnReplay {
			reason = ReasonReplayReadOnly
		}
		out := &OpResult{Snapshot: s.snapshotLocked(ls), Reason: reason}
		ls.mu.Unlock()
		return out, nil
	}
	ls.touch()
	snap := s.snapshotLocked(ls)
	ls.mu.Unlock()

	s.publish(ls, snap)
	return &OpResult{Snapshot: snap, Applied: true, Removed: removed}, nil
}

// StartNewGame resets the session to a fresh Live game and clears any
// persisted resume state.
func (s *Service) StartNewGame(ctx context.Context, sessionID string) (*OpResult, error) {
	return s.resetOp(ctx, sessionID, func(ls *liveSession) {
		ls.sess.StartNewGame()
	})
}

// EnterEngineOpponent starts an engine-opponent game with the human on the
// chosen side. When the human plays Black the engine's first move is made
// before returning.
func (s *Service) EnterEngineOpponent(ctx context.Context, sessionID, colorChoice string) (*OpResult, error) {
	human := ParseColorChoice(colorChoice)

	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	if ls.busy {
		out := &OpResult{Snapshot: s.snapshotLocked(ls), Reason: ReasonEngineThinking}
		ls.mu.Unlock()
		return out, nil
	}
	ls.sess.EnterEngineOpponentMode(human)
	ls.started = time.Now()
	ls.resumed = false
	ls.touch()

	var tag, fen string
	if human == nchess.Black {
		ls.busy = true
		tag = ls.sess.Generation()
		fen = ls.sess.TerminalPosition().String()
	}
	snap := s.snapshotLocked(ls)
	ls.mu.Unlock()

	s.clearResume(ctx, ls.id)
	s.publish(ls, snap)

	if tag != "" {
		reply := s.applyEngineBest(ctx, ls, tag, fen)
		return &OpResult{Snapshot: reply.Snapshot, Applied: true}, nil
	}
	return &OpResult{Snapshot: snap, Applied: true}, nil
}

// ToggleChatAnnotated flips between chat-annotated and live play.
func (s *Service) ToggleChatAnnotated(ctx context.Context, sessionID string) (*OpResult, error) {
	return s.resetOp(ctx, sessionID, func(ls *liveSession) {
		ls.sess.ToggleChatAnnotatedMode()
	})
}

// resetOp is the shared shape of operations that replace the move log and
// drop persisted resume state.
func (s *Service) resetOp(ctx context.Context, sessionID string, apply func(*liveSession)) (*OpResult, error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	if ls.busy {
		out := &OpResult{Snapshot: s.snapshotLocked(ls), Reason: ReasonEngineThinking}
		ls.mu.Unlock()
		return out, nil
	}
	apply(ls)
	ls.started = time.Now()
	ls.resumed = false
	ls.touch()
	snap := s.snapshotLocked(ls)
	ls.mu.Unlock()

	s.clearResume(ctx, ls.id)
	s.publish(ls, snap)
	return &OpResult{Snapshot: snap, Applied: true}, nil
}

// ImportReplay loads a PGN document into read-only replay mode, persists the
// resume entries and archives the imported game.
func (s *Service) ImportReplay(ctx context.Context, sessionID, pgnText string) (*OpResult, error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	if ls.busy {
		out := &OpResult{Snapshot: s.snapshotLocked(ls), Reason: ReasonEngineThinking}
		ls.mu.Unlock()
		return out, nil
	}
	if ierr := ls.sess.ImportReplay(pgnText); ierr != nil {
		ls.mu.Unlock()
		return nil, ierr
	}
	ls.started = time.Now()
	ls.resumed = false
	ls.touch()

	archived := s.archiveRecordLocked(ls, domain.SourceImported)
	pgn := ls.sess.OriginalPGN()
	cursor := ls.sess.Cursor()
	snap := s.snapshotLocked(ls)
	ls.mu.Unlock()

	s.writeResume(ctx, ls.id, pgn, cursor)
	s.insertArchive(ctx, archived)
	s.publish(ls, snap)
	s.logger.Info("replay imported",
		zap.String("session_id", ls.id), zap.Int("plies", snap.MoveCount))
	return &OpResult{Snapshot: snap, Applied: true}, nil
}

// NavigateTo moves the replay cursor, clamping out-of-range indexes. In
// replay mode the new cursor is written through to the resume entries.
func (s *Service) NavigateTo(ctx context.Context, sessionID string, index int) (*OpResult, error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	if ls.busy {
		out := &OpResult{Snapshot: s.snapshotLocked(ls), Reason: ReasonEngineThinking}
		ls.mu.Unlock()
		return out, nil
	}
	cursor := ls.sess.NavigateTo(index)
	inReplay := ls.sess.Mode() == session.ModePgnReplay
	ls.touch()
	snap := s.snapshotLocked(ls)
	ls.mu.Unlock()

	if inReplay {
		s.writeResumeCursor(ctx, ls.id, cursor)
	}
	s.publish(ls, snap)
	return &OpResult{Snapshot: snap, Applied: true}, nil
}

// ExitReplay leaves replay mode, drops the imported game and resume state.
func (s *Service) ExitReplay(ctx context.Context, sessionID string) (*OpResult, error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	if ls.sess.Mode() != session.ModePgnReplay {
		out := &OpResult{Snapshot: s.snapshotLocked(ls), Reason: ReasonNotInReplay}
		ls.mu.Unlock()
		return out, nil
	}
	ls.sess.ExitReplay()
	ls.started = time.Now()
	ls.resumed = false
	ls.touch()
	snap := s.snapshotLocked(ls)
	ls.mu.Unlock()

	s.clearResume(ctx, ls.id)
	s.publish(ls, snap)
	return &OpResult{Snapshot: snap, Applied: true}, nil
}

// Analyze assembles an analysis record for the position under the cursor.
func (s *Service) Analyze(ctx context.Context, sessionID string) (*analysis.Record, *Snapshot, error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, nil, err
	}

	ls.mu.Lock()
	req := s.analysisRequestLocked(ls)
	snap := s.snapshotLocked(ls)
	ls.mu.Unlock()

	rec := s.analyzer.Assemble(ctx, req)
	return rec, snap, nil
}

// ExportPGN renders the move log up to the cursor as a movetext document.
func (s *Service) ExportPGN(ctx context.Context, sessionID string) (string, string, error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return "", "", err
	}

	ls.mu.Lock()
	doc := ls.sess.ExportPGN()
	ls.mu.Unlock()
	return doc, session.ExportFilename, nil
}

// History lists the most recently archived games of this session.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]*domain.ArchivedGame, error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	return s.repo.GetRecentGames(ctx, ls.id, limit)
}

// Game fetches one archived game scoped to the session.
func (s *Service) Game(ctx context.Context, sessionID string, id int64) (*domain.ArchivedGame, error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetGame(ctx, id, ls.id)
}

// Subscribe registers a snapshot listener for the session. Slow listeners
// drop intermediate snapshots rather than blocking mutations.
func (s *Service) Subscribe(sessionID string) (<-chan *Snapshot, func(), error) {
	ls, err := s.getSession(sessionID)
	if err != nil {
		return nil, nil, err
	}

	ls.subMu.Lock()
	id := ls.nextSub
	ls.nextSub++
	ch := make(chan *Snapshot, subscriberBuffer)
	ls.subs[id] = ch
	ls.subMu.Unlock()

	cancel := func() {
		ls.subMu.Lock()
		if c, ok := ls.subs[id]; ok {
			delete(ls.subs, id)
			close(c)
		}
		ls.subMu.Unlock()
	}
	return ch, cancel, nil
}

// SweepIdle evicts sessions that have been inactive longer than maxIdle.
// Returns the number of evicted sessions.
func (s *Service) SweepIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-maxIdle).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, ls := range s.sessions {
		if ls.lastSeen.Load() > cutoff {
			continue
		}
		ls.mu.Lock()
		busy := ls.busy
		ls.mu.Unlock()
		if busy {
			continue
		}
		delete(s.sessions, id)
		ls.closeSubscribers()
		evicted++
	}
	if evicted > 0 {
		s.logger.Info("idle sessions evicted", zap.Int("count", evicted))
	}
	return evicted
}

// SessionCount reports the number of live sessions in the registry.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) getSession(sessionID string) (*liveSession, error) {
	sid := normalizeSessionID(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.sessions[sid]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ls, nil
}

func (s *Service) analysisRequestLocked(ls *liveSession) analysis.Request {
	cursor := ls.sess.Cursor()
	ucis := ls.sess.UCIHistory()[:cursor+1]
	sans := ls.sess.SANHistory()[:cursor+1]
	return analysis.Request{
		FEN:      ls.sess.FEN(),
		MovesUCI: ucis,
		MovesSAN: sans,
	}
}

func (s *Service) snapshotLocked(ls *liveSession) *Snapshot {
	method := ""
	if ls.sess.GameOver() {
		method = ls.sess.Method().String()
	}
	return &Snapshot{
		SessionID:   ls.id,
		Mode:        ls.sess.Mode(),
		FEN:         ls.sess.FEN(),
		Cursor:      ls.sess.Cursor(),
		MoveCount:   ls.sess.MoveCount(),
		MovesSAN:    ls.sess.SANHistory(),
		MovesUCI:    ls.sess.UCIHistory(),
		Orientation: colorName(ls.sess.Orientation()),
		HumanColor:  colorName(ls.sess.HumanColor()),
		SideToMove:  colorName(ls.sess.SideToMove()),
		Busy:        ls.busy,
		GameOver:    ls.sess.GameOver(),
		Outcome:     ls.sess.Outcome(),
		Method:      method,
		Transcript:  ls.sess.Transcript(),
		Resumed:     ls.resumed,
		UpdatedAt:   time.Now(),
	}
}

func (s *Service) archiveRecordLocked(ls *liveSession, source string) *domain.ArchivedGame {
	ucis := ls.sess.UCIHistory()
	sans := ls.sess.SANHistory()
	code, title := analysis.ECOForMoves(ucis)

	pgn := ls.sess.ExportPGN()
	if source == domain.SourceImported && ls.sess.OriginalPGN() != "" {
		pgn = ls.sess.OriginalPGN()
	}

	method := ""
	if ls.sess.GameOver() {
		method = ls.sess.Method().String()
	}
	return &domain.ArchivedGame{
		GameUUID:     ls.sess.Generation(),
		SessionID:    ls.id,
		Source:       source,
		Result:       ls.sess.Outcome(),
		ResultMethod: method,
		MovesUCI:     ucis,
		MovesSAN:     sans,
		PGN:          pgn,
		OpeningName:  title,
		OpeningECO:   code,
		PlyCount:     len(sans),
		StartedAt:    ls.started,
		EndedAt:      time.Now(),
	}
}

func (s *Service) insertArchive(ctx context.Context, rec *domain.ArchivedGame) {
	if rec == nil {
		return
	}
	id, err := s.repo.InsertGame(ctx, rec)
	if errors.Is(err, ErrDuplicateGame) {
		s.logger.Debug("game already archived", zap.String("game_uuid", rec.GameUUID))
		return
	}
	if err != nil {
		s.logger.Warn("archive write failed",
			zap.String("session_id", rec.SessionID), zap.Error(err))
		return
	}
	s.logger.Info("game archived",
		zap.String("session_id", rec.SessionID),
		zap.Int64("game_id", id),
		zap.String("result", rec.Result),
		zap.String("source", rec.Source))
}

func (s *Service) publish(ls *liveSession, snap *Snapshot) {
	if snap == nil {
		return
	}
	ls.subMu.Lock()
	defer ls.subMu.Unlock()
	for _, ch := range ls.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Service) writeResume(ctx context.Context, sid, pgn string, cursor int) {
	if err := s.cache.SetString(ctx, resumePGNKey(sid), pgn, s.cfg.ResumeTTL); err != nil {
		s.logger.Warn("resume pgn write failed", zap.String("session_id", sid), zap.Error(err))
	}
	s.writeResumeCursor(ctx, sid, cursor)
}

func (s *Service) writeResumeCursor(ctx context.Context, sid string, cursor int) {
	if err := s.cache.SetString(ctx, resumeCursorKey(sid), strconv.Itoa(cursor), s.cfg.ResumeTTL); err != nil {
		s.logger.Warn("resume cursor write failed", zap.String("session_id", sid), zap.Error(err))
	}
}

func (s *Service) clearResume(ctx context.Context, sid string) {
	if err := s.cache.Del(ctx, resumePGNKey(sid), resumeCursorKey(sid)); err != nil {
		s.logger.Warn("resume state delete failed", zap.String("session_id", sid), zap.Error(err))
	}
}

func (ls *liveSession) touch() {
	ls.lastSeen.Store(time.Now().UnixNano())
}

func (ls *liveSession) closeSubscribers() {
	ls.subMu.Lock()
	defer ls.subMu.Unlock()
	for id, ch := range ls.subs {
		delete(ls.subs, id)
		close(ch)
	}
}

func resumePGNKey(sid string) string    { return "coach:resume:" + sid + ":pgn" }
func resumeCursorKey(sid string) string { return "coach:resume:" + sid + ":cursor" }

// normalizeSessionID accepts a client-supplied uuid and generates a fresh
// one for anything else, keeping registry and Redis keys well formed.
func normalizeSessionID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if parsed, err := uuid.Parse(trimmed); err == nil {
		return parsed.String()
	}
	return uuid.NewString()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, session.ErrReplayReadOnly):
		return ReasonReplayReadOnly
	case errors.Is(err, session.ErrNotYourTurn):
		return ReasonNotYourTurn
	case errors.Is(err, session.ErrGameFinished):
		return ReasonGameFinished
	default:
		return ReasonIllegalMove
	}
}

func sourceForMode(mode session.Mode) string {
	if mode == session.ModeEngineOpponent {
		return domain.SourceEngine
	}
	return domain.SourceLive
}

func colorName(c nchess.Color) string {
	if c == nchess.White {
		return "white"
	}
	return "black"
}

func colorLabel(c nchess.Color) string {
	if c == nchess.White {
		return "White"
	}
	return "Black"
}

// ParseColorChoice maps a user color request onto a side. "random" flips a
// coin; anything unrecognized defaults to White.
func ParseColorChoice(s string) nchess.Color {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "black", "b":
		return nchess.Black
	case "random":
		if n, err := rand.Int(rand.Reader, big.NewInt(2)); err == nil && n.Int64() == 1 {
			return nchess.Black
		}
		return nchess.White
	default:
		return nchess.White
	}
}
