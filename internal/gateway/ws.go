package gateway

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mkrv/chesscoach/internal/adapter/boardpresenter"
	"github.com/mkrv/chesscoach/internal/service/coach"
)

const wsWriteTimeout = 5 * time.Second

// watch upgrades the request and streams a full state snapshot after every
// mutation until the client disconnects or the session is evicted.
func (h *Handler) watch(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("id")
	ch, cancelSub, err := h.coach.Subscribe(sid)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer cancelSub()

	conn, aerr := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if aerr != nil {
		h.logger.Warn("websocket accept failed",
			zap.String("session_id", sid), zap.Error(aerr))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// The stream is write-only; CloseRead surfaces client disconnects.
	ctx := conn.CloseRead(r.Context())

	if snap, serr := h.coach.Attach(ctx, sid); serr == nil {
		if werr := h.push(ctx, conn, snap); werr != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case snap, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			if werr := h.push(ctx, conn, snap); werr != nil {
				return
			}
		}
	}
}

func (h *Handler) push(ctx context.Context, conn *websocket.Conn, snap *coach.Snapshot) error {
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, boardpresenter.ToDTOState(snap))
}
