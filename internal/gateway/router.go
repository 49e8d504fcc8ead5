package gateway

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mkrv/chesscoach/internal/msgcat"
	"github.com/mkrv/chesscoach/internal/service/coach"
)

// Handler serves the JSON API and the websocket state stream.
type Handler struct {
	coach    *coach.Service
	messages *msgcat.Catalog
	logger   *zap.Logger
}

// NewRouter wires every endpoint and wraps the mux in the middleware chain.
func NewRouter(svc *coach.Service, messages *msgcat.Catalog, logger *zap.Logger) (http.Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("coach service is required")
	}
	if messages == nil {
		return nil, fmt.Errorf("message catalog is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{coach: svc, messages: messages, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)

	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.state)
	mux.HandleFunc("POST /api/sessions/{id}/moves", h.move)
	mux.HandleFunc("POST /api/sessions/{id}/engine-move", h.engineMove)
	mux.HandleFunc("POST /api/sessions/{id}/undo", h.undo)
	mux.HandleFunc("POST /api/sessions/{id}/new-game", h.newGame)
	mux.HandleFunc("POST /api/sessions/{id}/mode/engine", h.modeEngine)
	mux.HandleFunc("POST /api/sessions/{id}/mode/chat", h.modeChat)
	mux.HandleFunc("POST /api/sessions/{id}/replay/import", h.replayImport)
	mux.HandleFunc("POST /api/sessions/{id}/replay/navigate", h.replayNavigate)
	mux.HandleFunc("POST /api/sessions/{id}/replay/exit", h.replayExit)
	mux.HandleFunc("POST /api/sessions/{id}/analyze", h.analyze)
	mux.HandleFunc("GET /api/sessions/{id}/export.pgn", h.exportPGN)
	mux.HandleFunc("GET /api/sessions/{id}/history", h.history)
	mux.HandleFunc("GET /api/sessions/{id}/ws", h.watch)
	mux.HandleFunc("GET /api/games/{id}", h.game)

	return CORS(RequestID(AccessLog(logger, mux))), nil
}
