package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkrv/chesscoach/internal/lichess"
	"github.com/mkrv/chesscoach/internal/msgcat"
)

// Evaluator is the position evaluation dependency.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string, multiPV int) (*lichess.CloudEval, error)
}

// OpeningLookup is the opening statistics dependency.
type OpeningLookup interface {
	Lookup(ctx context.Context, query lichess.ExplorerQuery) (*lichess.ExplorerResult, error)
}

// NarrativeGenerator is the text generation dependency.
type NarrativeGenerator interface {
	Configured() bool
	Generate(ctx context.Context, prompt string) (string, error)
}

// Request describes the position to analyze.
type Request struct {
	FEN      string
	MovesUCI []string
	MovesSAN []string
}

// Record is one assembled analysis: the three component texts plus the
// evaluation's top continuation. Empty component strings mean "no data".
type Record struct {
	Opening     string
	Evaluation  string
	Narrative   string
	BestMoveUCI string
	OpeningName string
	OpeningECO  string
	Fallback    bool
}

// Config tunes the remote lookups.
type Config struct {
	MultiPV       int
	ExplorerSince int
	TopGames      int
}

// Assembler builds analysis records. The opening and evaluation lookups run
// concurrently and degrade independently; the narrative request runs last so
// its prompt can embed whatever the other two returned.
type Assembler struct {
	eval      Evaluator
	openings  OpeningLookup
	narrative NarrativeGenerator
	messages  *msgcat.Catalog
	logger    *zap.Logger
	cfg       Config
}

// New wires an assembler. Nil clients are tolerated and simply produce
// records without that component.
func New(eval Evaluator, openings OpeningLookup, narrative NarrativeGenerator, messages *msgcat.Catalog, cfg Config, logger *zap.Logger) (*Assembler, error) {
	if messages == nil {
		return nil, errors.New("analysis: message catalog is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MultiPV <= 0 {
		cfg.MultiPV = 1
	}
	return &Assembler{
		eval:      eval,
		openings:  openings,
		narrative: narrative,
		messages:  messages,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// Assemble queries the three collaborators and merges their results. It
// never fails: every component degrades to absence on its own.
func (a *Assembler) Assemble(ctx context.Context, req Request) *Record {
	rec := &Record{}

	var (
		evalRes *lichess.CloudEval
		openRes *lichess.ExplorerResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if a.eval != nil {
		g.Go(func() error {
			res, err := a.eval.Evaluate(gctx, req.FEN, a.cfg.MultiPV)
			if err != nil {
				if !errors.Is(err, lichess.ErrNotFound) {
					a.logger.Warn("cloud evaluation lookup failed", zap.Error(err))
				}
				return nil
			}
			evalRes = res
			return nil
		})
	}
	if a.openings != nil {
		g.Go(func() error {
			res, err := a.openings.Lookup(gctx, lichess.ExplorerQuery{
				Play:     req.MovesUCI,
				Since:    a.cfg.ExplorerSince,
				TopGames: a.cfg.TopGames,
			})
			if err != nil {
				if !errors.Is(err, lichess.ErrNotFound) {
					a.logger.Warn("opening explorer lookup failed", zap.Error(err))
				}
				return nil
			}
			openRes = res
			return nil
		})
	}
	_ = g.Wait()

	a.fillOpening(rec, openRes, req.MovesUCI)
	a.fillEvaluation(rec, evalRes)
	a.fillNarrative(ctx, rec, req)
	return rec
}

// FormatRecord concatenates the non-empty components in the fixed display
// order: opening, evaluation, narrative.
func FormatRecord(rec *Record) string {
	if rec == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{rec.Opening, rec.Evaluation, rec.Narrative} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, "\n")
}

func (a *Assembler) fillOpening(rec *Record, res *lichess.ExplorerResult, ucis []string) {
	if res != nil && res.Opening != nil && res.Opening.Name != "" {
		rec.OpeningName = res.Opening.Name
		rec.OpeningECO = res.Opening.ECO
		text := a.messages.MustRender("analysis.opening", map[string]any{
			"Name": res.Opening.Name,
			"Eco":  res.Opening.ECO,
		})
		if res.TotalGames() > 0 {
			text += "\n" + a.messages.MustRender("analysis.opening_stats", map[string]any{
				"White": res.White,
				"Draws": res.Draws,
				"Black": res.Black,
			})
		}
		rec.Opening = text
		return
	}

	// Remote data missing: fall back to the offline ECO book.
	code, title := ECOForMoves(ucis)
	if title == "" {
		return
	}
	rec.OpeningName = title
	rec.OpeningECO = code
	rec.Opening = a.messages.MustRender("analysis.opening", map[string]any{
		"Name": title,
		"Eco":  code,
	})
}

func (a *Assembler) fillEvaluation(rec *Record, res *lichess.CloudEval) {
	if res == nil || len(res.PVs) == 0 {
		return
	}
	if best, ok := res.BestMove(); ok {
		rec.BestMoveUCI = best
	}

	top := res.PVs[0]
	var text string
	switch {
	case top.Mate != nil:
		text = a.messages.MustRender("analysis.eval_mate", map[string]any{
			"Moves": *top.Mate,
			"Depth": res.Depth,
		})
	case top.CP != nil:
		text = a.messages.MustRender("analysis.eval_cp", map[string]any{
			"Score": fmt.Sprintf("%+.2f", float64(*top.CP)/100),
			"Depth": res.Depth,
		})
	default:
		return
	}
	if line := truncateLine(top.Moves, 6); line != "" {
		text += "\n" + a.messages.MustRender("analysis.best_line", map[string]any{"Line": line})
	}
	rec.Evaluation = text
}

func (a *Assembler) fillNarrative(ctx context.Context, rec *Record, req Request) {
	if a.narrative == nil || !a.narrative.Configured() {
		rec.Narrative = a.messages.MustRender("analysis.fallback", nil)
		rec.Fallback = true
		return
	}

	text, err := a.narrative.Generate(ctx, a.buildPrompt(rec, req))
	if err != nil {
		a.logger.Warn("narrative generation failed", zap.Error(err))
		rec.Narrative = a.messages.MustRender("analysis.apology", nil)
		rec.Fallback = true
		return
	}
	rec.Narrative = strings.TrimSpace(text)
}

// buildPrompt embeds the position, the last moves with side labels, and any
// evaluation or opening findings into one narrative request.
func (a *Assembler) buildPrompt(rec *Record, req Request) string {
	var b strings.Builder
	b.WriteString("You are a chess coach commenting on a game in progress.\n")
	b.WriteString("Position (FEN): " + req.FEN + "\n")

	n := len(req.MovesSAN)
	switch {
	case n == 0:
		b.WriteString("No moves have been played yet.\n")
	case n == 1:
		b.WriteString(fmt.Sprintf("Last move: %s played %s.\n", sideOfPly(0), req.MovesSAN[0]))
	default:
		b.WriteString(fmt.Sprintf("Last moves: %s played %s, then %s played %s.\n",
			sideOfPly(n-2), req.MovesSAN[n-2], sideOfPly(n-1), req.MovesSAN[n-1]))
	}

	if rec.Evaluation != "" {
		b.WriteString("Engine view: " + strings.ReplaceAll(rec.Evaluation, "\n", "; ") + "\n")
	}
	if rec.OpeningName != "" {
		b.WriteString("Opening: " + rec.OpeningName + ".\n")
	}
	b.WriteString("Give two or three sentences of plain-language advice for the player to move. Avoid long variation dumps.")
	return b.String()
}

func sideOfPly(index int) string {
	if index%2 == 0 {
		return "White"
	}
	return "Black"
}

func truncateLine(moves string, max int) string {
	fields := strings.Fields(moves)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) > max {
		fields = fields[:max]
	}
	return strings.Join(fields, " ")
}

// ECOForMoves resolves an opening code and name locally by replaying the
// UCI list against the bundled ECO book. Empty strings mean no match.
func ECOForMoves(ucis []string) (string, string) {
	if len(ucis) == 0 {
		return "", ""
	}
	game := nchess.NewGame()
	notation := nchess.UCINotation{}
	for _, mv := range ucis {
		move, err := notation.Decode(game.Position(), strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return "", ""
		}
		if err := game.Move(move, nil); err != nil {
			return "", ""
		}
	}
	book := opening.NewBookECO()
	if book == nil {
		return "", ""
	}
	if eco := book.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}
