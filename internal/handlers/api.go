// Package handlers exposes the HTTP surface of the realtime engine: lobby
// management, move submission, socket token minting, and health.
package handlers

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/KovalDenys1/boardly/internal/auth"
	"github.com/KovalDenys1/boardly/internal/bot"
	"github.com/KovalDenys1/boardly/internal/bus"
	"github.com/KovalDenys1/boardly/internal/identity"
	"github.com/KovalDenys1/boardly/internal/lobby"
	"github.com/KovalDenys1/boardly/internal/match"
	"github.com/KovalDenys1/boardly/internal/middleware"
	"github.com/KovalDenys1/boardly/internal/telemetry"
	"github.com/KovalDenys1/boardly/internal/ws"
)

// API bundles everything the HTTP handlers reach into.
type API struct {
	Tokens   *auth.TokenService
	Resolver *identity.Resolver
	Lobbies  *lobby.Registry
	Runtime  *match.Runtime
	Bots     *bot.Executor
	Events   *bus.Bus
	Adapter  *ws.Adapter
	Sink     telemetry.Sink
	Logger   *logrus.Logger

	// PublicBaseURL is the externally reachable base used in QR join links.
	PublicBaseURL string
}

// Router assembles the route table.
func (api *API) Router() http.Handler {
	router := httprouter.New()

	router.HandlerFunc(http.MethodGet, "/healthz", api.Healthz)
	router.HandlerFunc(http.MethodGet, "/socket/token", api.SocketToken)
	router.HandlerFunc(http.MethodPost, "/guest", api.CreateGuest)

	router.HandlerFunc(http.MethodPost, "/lobby", api.CreateLobby)
	router.HandlerFunc(http.MethodGet, "/lobbies", api.ListLobbies)
	router.Handle(http.MethodGet, "/lobby/:code", api.GetLobby)
	router.Handle(http.MethodPost, "/lobby/:code", api.JoinLobby)
	router.Handle(http.MethodPost, "/lobby/:code/leave", api.LeaveLobby)
	router.Handle(http.MethodPost, "/lobby/:code/add-bot", api.AddBot)
	router.Handle(http.MethodPost, "/lobby/:code/start", api.StartGame)
	router.Handle(http.MethodPost, "/lobby/:code/next-round", api.NextRound)
	router.Handle(http.MethodGet, "/lobby/:code/qr", api.LobbyQR)

	router.Handle(http.MethodPost, "/game/:id/state", api.SubmitMove)

	router.HandlerFunc(http.MethodGet, "/ws", api.Adapter.Handler())

	return middleware.LogRequests(api.Logger)(router)
}

// Healthz is the liveness probe.
func (api *API) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
