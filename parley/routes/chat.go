package routes

import (
	"errors"
	"net/http"

	"parley/parley/config"
	"parley/parley/controllers"
	"parley/parley/middlewares"

	"github.com/go-chi/chi/v5"
)

// ChatRoutes is the read-only REST mirror of the websocket protocol.
func ChatRoutes(ctrl *controllers.ChatController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.Identity(cfg, true))

		// GET /chats : caller's chats, newest first
		gr.Get("/", handleJSON(func(r *http.Request) (any, int, error) {
			chats, err := ctrl.Chats(r.Context(), middlewares.UserID(r.Context()))
			if err != nil {
				return nil, http.StatusInternalServerError, err
			}
			return chats, http.StatusOK, nil
		}))

		// GET /chats/{chat_id}/messages : messages in chronological order
		gr.Get("/{chat_id}/messages", handleJSON(func(r *http.Request) (any, int, error) {
			msgs, err := ctrl.History(r.Context(), middlewares.UserID(r.Context()), chi.URLParam(r, "chat_id"))
			if err != nil {
				return nil, statusFor(err), err
			}
			return msgs, http.StatusOK, nil
		}))

		// GET /chats/{chat_id}/transcript : archive of a deleted chat
		gr.Get("/{chat_id}/transcript", handleJSON(func(r *http.Request) (any, int, error) {
			t, err := ctrl.Transcript(r.Context(), middlewares.UserID(r.Context()), chi.URLParam(r, "chat_id"))
			if err != nil {
				return nil, statusFor(err), err
			}
			return t, http.StatusOK, nil
		}))
	})
	return r
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, controllers.ErrChatNotFound), errors.Is(err, controllers.ErrArchiveDisabled):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
