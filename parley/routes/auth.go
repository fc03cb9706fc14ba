package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"parley/parley/controllers"
	"parley/parley/types"

	"github.com/go-chi/chi/v5"
)

func AuthRoutes(ctrl *controllers.AuthController) chi.Router {
	r := chi.NewRouter()
	// POST /auth/token : register a device and get a token for it
	r.Post("/token", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, http.StatusBadRequest, err
		}
		resp, err := ctrl.IssueToken(r.Context(), req.DeviceID)
		if errors.Is(err, controllers.ErrInvalidDevice) {
			return nil, http.StatusBadRequest, err
		}
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		return resp, http.StatusOK, nil
	}))
	return r
}
