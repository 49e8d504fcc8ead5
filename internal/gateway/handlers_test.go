package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mkrv/chesscoach/internal/analysis"
	"github.com/mkrv/chesscoach/internal/domain"
	"github.com/mkrv/chesscoach/internal/lichess"
	"github.com/mkrv/chesscoach/internal/msgcat"
	"github.com/mkrv/chesscoach/internal/service/cache"
	"github.com/mkrv/chesscoach/internal/service/coach"
	"github.com/mkrv/chesscoach/pkg/boarddto"
)

const lopezPGN = `[Event "Test"]
[Site "?"]
[Date "2024.01.01"]
[Result "*"]

1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 *`

type gwEval struct {
	mu    sync.Mutex
	moves []string
}

func (g *gwEval) Evaluate(_ context.Context, _ string, _ int) (*lichess.CloudEval, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.moves) == 0 {
		return nil, lichess.ErrNotFound
	}
	mv := g.moves[0]
	g.moves = g.moves[1:]
	cp := 15
	return &lichess.CloudEval{Depth: 28, PVs: []lichess.PV{{Moves: mv, CP: &cp}}}, nil
}

type gwAnalyzer struct{}

func (gwAnalyzer) Assemble(_ context.Context, _ analysis.Request) *analysis.Record {
	return &analysis.Record{Narrative: "Solid opening play."}
}

type gwEnv struct {
	srv  *httptest.Server
	repo coach.Repository
	eval *gwEval
}

func newTestServer(t *testing.T) *gwEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("miniredis port: %v", err)
	}
	cacheSvc, err := cache.NewCacheService(cache.CacheConfig{Host: mr.Host(), Port: port}, nil)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	t.Cleanup(func() { _ = cacheSvc.Close() })

	messages, err := msgcat.New("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	env := &gwEnv{repo: coach.NewMemoryRepository(), eval: &gwEval{}}
	svc, err := coach.NewService(env.eval, gwAnalyzer{}, cacheSvc, env.repo, messages, coach.Config{
		ResumeTTL:    time.Minute,
		HistoryLimit: 10,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	router, err := NewRouter(svc, messages, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	env.srv = httptest.NewServer(router)
	t.Cleanup(env.srv.Close)
	return env
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	resp, err := http.Post(url, "application/json", rd)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func getJSON(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func mustDecode(t *testing.T, data []byte, dest any) {
	t.Helper()
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
}

func newSession(t *testing.T, env *gwEnv) string {
	t.Helper()
	resp, data := postJSON(t, env.srv.URL+"/api/sessions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create session status = %d body %s", resp.StatusCode, data)
	}
	var st boarddto.SessionState
	mustDecode(t, data, &st)
	if st.SessionID == "" {
		t.Fatalf("state = %+v", st)
	}
	return st.SessionID
}

func TestCreateAndFetchSession(t *testing.T) {
	env := newTestServer(t)
	sid := newSession(t, env)

	resp, data := getJSON(t, env.srv.URL+"/api/sessions/"+sid)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st boarddto.SessionState
	mustDecode(t, data, &st)
	if st.SessionID != sid || st.Mode != "live" || st.Cursor != -1 {
		t.Fatalf("state = %+v", st)
	}
}

func TestMoveAppliedAndRejected(t *testing.T) {
	env := newTestServer(t)
	sid := newSession(t, env)
	base := env.srv.URL + "/api/sessions/" + sid

	resp, data := postJSON(t, base+"/moves", boarddto.MoveRequest{From: "e2", To: "e4"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body %s", resp.StatusCode, data)
	}
	var out boarddto.MoveOutcome
	mustDecode(t, data, &out)
	if !out.OK || out.PlayerSAN != "e4" || out.State.MoveCount != 1 {
		t.Fatalf("outcome = %+v", out)
	}

	resp, data = postJSON(t, base+"/moves", boarddto.MoveRequest{From: "e2", To: "e5"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rejected move status = %d, silent no-ops stay 200", resp.StatusCode)
	}
	mustDecode(t, data, &out)
	if out.OK || out.Reason != coach.ReasonIllegalMove {
		t.Fatalf("outcome = %+v", out)
	}
	if out.State.MoveCount != 1 {
		t.Fatalf("state mutated: %+v", out.State)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	env := newTestServer(t)

	resp, data := postJSON(t, env.srv.URL+"/api/sessions/"+uuid.NewString()+"/moves",
		boarddto.MoveRequest{From: "e2", To: "e4"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d body %s", resp.StatusCode, data)
	}
	var body boarddto.ErrorBody
	mustDecode(t, data, &body)
	if body.Code != "session_not_found" || body.Message != "Unknown session." {
		t.Fatalf("body = %+v", body)
	}
}

func TestMalformedBodyIs400(t *testing.T) {
	env := newTestServer(t)
	sid := newSession(t, env)

	resp, err := http.Post(env.srv.URL+"/api/sessions/"+sid+"/moves", "application/json",
		strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestImportInvalidPGNIs400(t *testing.T) {
	env := newTestServer(t)
	sid := newSession(t, env)

	resp, data := postJSON(t, env.srv.URL+"/api/sessions/"+sid+"/replay/import",
		boarddto.ImportRequest{PGN: "1. zz9 ??"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d body %s", resp.StatusCode, data)
	}
	var body boarddto.ErrorBody
	mustDecode(t, data, &body)
	if body.Code != "invalid_pgn" || !strings.Contains(body.Message, "PGN") {
		t.Fatalf("body = %+v", body)
	}
}

func TestReplayNavigateAndExport(t *testing.T) {
	env := newTestServer(t)
	sid := newSession(t, env)
	base := env.srv.URL + "/api/sessions/" + sid

	resp, data := postJSON(t, base+"/replay/import", boarddto.ImportRequest{PGN: lopezPGN})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import status = %d body %s", resp.StatusCode, data)
	}
	var op boarddto.OpOutcome
	mustDecode(t, data, &op)
	if !op.OK || op.State.Mode != "replay" || op.State.Cursor != 5 {
		t.Fatalf("outcome = %+v", op)
	}

	resp, data = postJSON(t, base+"/replay/navigate", boarddto.NavigateRequest{Index: 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("navigate status = %d", resp.StatusCode)
	}
	mustDecode(t, data, &op)
	if op.State.Cursor != 2 {
		t.Fatalf("cursor = %d, want 2", op.State.Cursor)
	}

	resp, body := getJSON(t, base+"/export.pgn")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `attachment; filename="chess_game.pgn"` {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	doc := string(body)
	if !strings.Contains(doc, "Nf3") {
		t.Fatalf("export missing cursor moves: %q", doc)
	}
	if strings.Contains(doc, "Bb5") {
		t.Fatalf("export leaked moves beyond cursor: %q", doc)
	}

	resp, data = postJSON(t, base+"/replay/exit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("exit status = %d", resp.StatusCode)
	}
	mustDecode(t, data, &op)
	if !op.OK || op.State.Mode != "live" {
		t.Fatalf("outcome = %+v", op)
	}
}

func TestUndoEndpoint(t *testing.T) {
	env := newTestServer(t)
	sid := newSession(t, env)
	base := env.srv.URL + "/api/sessions/" + sid

	if resp, _ := postJSON(t, base+"/moves", boarddto.MoveRequest{From: "e2", To: "e4"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("move status = %d", resp.StatusCode)
	}
	resp, data := postJSON(t, base+"/undo", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("undo status = %d", resp.StatusCode)
	}
	var op boarddto.OpOutcome
	mustDecode(t, data, &op)
	if !op.OK || op.Removed != 1 || op.State.MoveCount != 0 {
		t.Fatalf("outcome = %+v", op)
	}
}

func TestEngineModeBlackGetsFirstMove(t *testing.T) {
	env := newTestServer(t)
	sid := newSession(t, env)
	env.eval.moves = []string{"e2e4"}

	resp, data := postJSON(t, env.srv.URL+"/api/sessions/"+sid+"/mode/engine",
		boarddto.EngineColorRequest{Color: "black"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body %s", resp.StatusCode, data)
	}
	var op boarddto.OpOutcome
	mustDecode(t, data, &op)
	if !op.OK || op.State.Mode != "engine" {
		t.Fatalf("outcome = %+v", op)
	}
	if op.State.HumanColor != "black" || op.State.MoveCount != 1 {
		t.Fatalf("state = %+v", op.State)
	}
}

func TestEngineMoveUnavailable(t *testing.T) {
	env := newTestServer(t)
	sid := newSession(t, env)

	resp, data := postJSON(t, env.srv.URL+"/api/sessions/"+sid+"/engine-move", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out boarddto.MoveOutcome
	mustDecode(t, data, &out)
	if out.OK || out.Reason != coach.ReasonEngineUnavailable {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	env := newTestServer(t)
	sid := newSession(t, env)

	resp, data := postJSON(t, env.srv.URL+"/api/sessions/"+sid+"/analyze", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body %s", resp.StatusCode, data)
	}
	var out boarddto.AnalyzeResponse
	mustDecode(t, data, &out)
	if out.Analysis == nil || !strings.Contains(out.Analysis.Text, "Solid opening play.") {
		t.Fatalf("analysis = %+v", out.Analysis)
	}
	if out.State == nil || out.State.SessionID != sid {
		t.Fatalf("state = %+v", out.State)
	}
}

func TestHistoryAndGameEndpoints(t *testing.T) {
	env := newTestServer(t)
	sid := newSession(t, env)
	ctx := context.Background()

	id, err := env.repo.InsertGame(ctx, &domain.ArchivedGame{
		GameUUID:  uuid.NewString(),
		SessionID: sid,
		Source:    domain.SourceLive,
		Result:    "1-0",
		MovesSAN:  []string{"e4"},
		MovesUCI:  []string{"e2e4"},
		PlyCount:  1,
		EndedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertGame: %v", err)
	}

	resp, data := getJSON(t, env.srv.URL+"/api/sessions/"+sid+"/history")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var hist boarddto.HistoryResponse
	mustDecode(t, data, &hist)
	if len(hist.Games) != 1 || hist.Games[0].Result != "1-0" {
		t.Fatalf("history = %+v", hist.Games)
	}

	resp, data = getJSON(t, env.srv.URL+"/api/games/"+strconv.FormatInt(id, 10)+"?session_id="+sid)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("game status = %d body %s", resp.StatusCode, data)
	}
	var game boarddto.GameResponse
	mustDecode(t, data, &game)
	if game.Game == nil || game.Game.ID != id {
		t.Fatalf("game = %+v", game.Game)
	}

	resp, _ = getJSON(t, env.srv.URL+"/api/games/999999?session_id="+sid)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing game status = %d", resp.StatusCode)
	}

	resp, _ = getJSON(t, env.srv.URL+"/api/games/abc?session_id="+sid)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestServer(t)

	resp, data := getJSON(t, env.srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var health boarddto.HealthResponse
	mustDecode(t, data, &health)
	if health.Status != "ok" {
		t.Fatalf("health = %+v", health)
	}
}

func TestCORSAndRequestID(t *testing.T) {
	env := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/sessions", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}

	req, err = http.NewRequest(http.MethodGet, env.srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("X-Request-ID", "rid-12345")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "rid-12345" {
		t.Fatalf("request id = %q, want echo of the supplied one", got)
	}

	resp, err = http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("request id not generated")
	}
}

func TestWebSocketStreamsStateOnMutation(t *testing.T) {
	env := newTestServer(t)
	sid := newSession(t, env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/sessions/" + sid + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var st boarddto.SessionState
	if err := wsjson.Read(ctx, conn, &st); err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	if st.SessionID != sid || st.MoveCount != 0 {
		t.Fatalf("initial state = %+v", st)
	}

	resp, _ := postJSON(t, env.srv.URL+"/api/sessions/"+sid+"/moves",
		boarddto.MoveRequest{From: "e2", To: "e4"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("move status = %d", resp.StatusCode)
	}

	for {
		if err := wsjson.Read(ctx, conn, &st); err != nil {
			t.Fatalf("read pushed state: %v", err)
		}
		if st.MoveCount == 1 {
			break
		}
	}
	if st.MovesSAN[0] != "e4" {
		t.Fatalf("pushed state = %+v", st)
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	env := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/sessions/" + uuid.NewString() + "/ws"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatal("dial to unknown session succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response = %+v", resp)
	}
}
