package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mkrv/chesscoach/internal/adapter/boardpresenter"
	"github.com/mkrv/chesscoach/internal/service/coach"
	"github.com/mkrv/chesscoach/internal/session"
	"github.com/mkrv/chesscoach/pkg/boarddto"
)

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, boarddto.HealthResponse{
		Status:   "ok",
		Sessions: h.coach.SessionCount(),
	})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req boarddto.CreateSessionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	snap, err := h.coach.Attach(r.Context(), req.SessionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardpresenter.ToDTOState(snap))
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coach.Attach(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardpresenter.ToDTOState(snap))
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request) {
	var req boarddto.MoveRequest
	if !h.decode(w, r, &req) {
		return
	}
	sum, err := h.coach.SubmitMove(r.Context(), r.PathValue("id"), req.From, req.To, req.Promotion)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardpresenter.ToDTOMove(sum))
}

func (h *Handler) engineMove(w http.ResponseWriter, r *http.Request) {
	sum, err := h.coach.RequestEngineMove(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardpresenter.ToDTOMove(sum))
}

func (h *Handler) undo(w http.ResponseWriter, r *http.Request) {
	res, err := h.coach.Undo(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardpresenter.ToDTOOp(res))
}

func (h *Handler) newGame(w http.ResponseWriter, r *http.Request) {
	res, err := h.coach.StartNewGame(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardpresenter.ToDTOOp(res))
}

func (h *Handler) modeEngine(w http.ResponseWriter, r *http.Request) {
	var req boarddto.EngineColorRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	res, err := h.coach.EnterEngineOpponent(r.Context(), r.PathValue("id"), req.Color)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardpresenter.ToDTOOp(res))
}

func (h *Handler) modeChat(w http.ResponseWriter, r *http.Request) {
	res, err := h.coach.ToggleChatAnnotated(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardpresenter.ToDTOOp(res))
}

func (h *Handler) replayImport(w http.ResponseWriter, r *http.Request) {
	var req boarddto.ImportRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.coach.ImportReplay(r.Context(), r.PathValue("id"), req.PGN)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardpresenter.ToDTOOp(res))
}

func (h *Handler) replayNavigate(w http.ResponseWriter, r *http.Request) {
	var req boarddto.NavigateRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.coach.NavigateTo(r.Context(), r.PathValue("id"), req.Index)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardpresenter.ToDTOOp(res))
}

func (h *Handler) replayExit(w http.ResponseWriter, r *http.Request) {
	res, err := h.coach.ExitReplay(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardpresenter.ToDTOOp(res))
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	rec, snap, err := h.coach.Analyze(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boarddto.AnalyzeResponse{
		State:    boardpresenter.ToDTOState(snap),
		Analysis: boardpresenter.ToDTOAnalysis(rec),
	})
}

func (h *Handler) exportPGN(w http.ResponseWriter, r *http.Request) {
	doc, filename, err := h.coach.ExportPGN(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-chess-pgn")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = io.WriteString(w, doc)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	games, err := h.coach.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boarddto.HistoryResponse{Games: boardpresenter.ToDTOGames(games)})
}

func (h *Handler) game(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.badRequest(w)
		return
	}
	g, gerr := h.coach.Game(r.Context(), r.URL.Query().Get("session_id"), id)
	if gerr != nil {
		h.writeServiceError(w, r, gerr)
		return
	}
	if g == nil {
		h.writeErrorBody(w, http.StatusNotFound, "game_not_found",
			h.messages.MustRender("errors.game_not_found", nil))
		return
	}
	writeJSON(w, http.StatusOK, boarddto.GameResponse{Game: boardpresenter.ToDTOGame(g)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		h.badRequest(w)
		return false
	}
	return true
}

// decodeOptional treats an empty body as the zero request.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dest any) bool {
	err := json.NewDecoder(r.Body).Decode(dest)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.badRequest(w)
	return false
}

func (h *Handler) badRequest(w http.ResponseWriter) {
	h.writeErrorBody(w, http.StatusBadRequest, "bad_request", h.messages.MustRender("errors.bad_request", nil))
}

func (h *Handler) writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, boarddto.ErrorBody{Code: code, Message: message})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, coach.ErrSessionNotFound):
		h.writeErrorBody(w, http.StatusNotFound, "session_not_found",
			h.messages.MustRender("errors.session_not_found", nil))
	case errors.Is(err, session.ErrInvalidPGN):
		h.writeErrorBody(w, http.StatusBadRequest, "invalid_pgn",
			h.messages.MustRender("replay.invalid_file", nil))
	default:
		h.logger.Error("request failed",
			zap.String("rid", GetRequestID(r.Context())), zap.Error(err))
		h.writeErrorBody(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
