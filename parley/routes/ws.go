package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"parley/parley/config"
	"parley/parley/controllers"
	"parley/parley/middlewares"
	"parley/parley/realtime"
	"parley/parley/utils/logging"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	wsReadLimit    = 1 << 20
	wsWriteTimeout = 10 * time.Second
)

// WSRoutes serves the chat protocol. Identity is bound once at the handshake;
// a connection without one can still list chats but owns nothing.
func WSRoutes(ctrl *controllers.ChatController, hub *realtime.Hub, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.With(middlewares.Identity(cfg, false)).Get("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns(cfg.ClientURL),
		})
		if err != nil {
			logging.ErrorLogger.Error("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(wsReadLimit)

		userID := middlewares.UserID(r.Context())
		peer := realtime.NewPeer(userID)
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		defer hub.Remove(peer)
		defer peer.Close()

		logging.AppLogger.Info("client connected", zap.String("peer_id", peer.ID), zap.String("user_id", userID))
		go peer.WriteLoop(ctx, func(ctx context.Context, frame []byte) error {
			ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			defer cancel()
			return conn.Write(ctx, websocket.MessageText, frame)
		})

		serveConn(ctx, conn, ctrl, peer)
		logging.AppLogger.Info("client disconnected", zap.String("peer_id", peer.ID), zap.String("user_id", userID))
	})
	return r
}

func serveConn(ctx context.Context, conn *websocket.Conn, ctrl *controllers.ChatController, peer *realtime.Peer) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				logging.AppLogger.Warn("websocket read ended", zap.String("peer_id", peer.ID), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			peer.Emit(realtime.EventError, realtime.ErrInvalidPayload)
			continue
		}
		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			peer.Emit(realtime.EventError, realtime.ErrInvalidPayload)
			continue
		}
		ctrl.Dispatch(ctx, peer, peer.UserID, env)
	}
}

// originPatterns turns CLIENT_URL into host patterns for the origin check.
// Same-host origins are always accepted.
func originPatterns(clientURL string) []string {
	var out []string
	for _, u := range strings.Split(clientURL, ",") {
		u = strings.TrimSpace(u)
		u = strings.TrimPrefix(u, "https://")
		u = strings.TrimPrefix(u, "http://")
		u = strings.TrimSuffix(u, "/")
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}
