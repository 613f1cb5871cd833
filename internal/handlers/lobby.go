package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/KovalDenys1/boardly/internal/lobby"
	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/ws"
)

type createLobbyRequest struct {
	Name             string `json:"name"`
	GameType         string `json:"gameType"`
	Password         string `json:"password,omitempty"`
	MaxPlayers       int    `json:"maxPlayers"`
	TurnTimerSeconds int    `json:"turnTimerSeconds"`
}

// CreateLobby creates a lobby plus its waiting game and returns both.
func (api *API) CreateLobby(w http.ResponseWriter, r *http.Request) {
	p, err := api.authenticate(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req createLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, ws.CodeInternalError, "malformed body")
		return
	}

	l, err := api.Lobbies.Create(r.Context(), p, lobby.CreateParams{
		Name:             req.Name,
		GameType:         models.GameType(req.GameType),
		Password:         req.Password,
		MaxPlayers:       req.MaxPlayers,
		TurnTimerSeconds: req.TurnTimerSeconds,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	g, err := api.Runtime.CreateGame(r.Context(), l)
	if err != nil {
		api.Lobbies.Close(r.Context(), l.Model.Code)
		writeDomainError(w, err)
		return
	}

	model, members := l.Snapshot()
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"lobby":   model,
		"gameId":  g.Model.ID,
		"players": members,
	})
}

// ListLobbies returns active lobby summaries, optionally filtered by
// ?gameType=.
func (api *API) ListLobbies(w http.ResponseWriter, r *http.Request) {
	filter := models.GameType(r.URL.Query().Get("gameType"))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lobbies": api.Lobbies.ListActive(filter),
	})
}

// GetLobby returns the lobby plus its active game snapshot. Readable by any
// current member.
func (api *API) GetLobby(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := api.authenticate(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	code := ps.ByName("code")

	l, ok := api.Lobbies.Get(code)
	if !ok {
		writeDomainError(w, lobby.ErrLobbyNotFound)
		return
	}
	if _, member := api.Lobbies.Member(code, p.ID); !member {
		writeDomainError(w, lobby.ErrNotMember)
		return
	}

	model, members := l.Snapshot()
	payload := map[string]interface{}{
		"lobby":   model,
		"players": members,
	}
	if gameID, ok := api.Runtime.GameByLobby(code); ok {
		if game, seats, ok := api.Runtime.Snapshot(gameID); ok {
			payload["game"] = map[string]interface{}{
				"id":                 game.ID,
				"status":             string(game.Status),
				"gameType":           string(game.GameType),
				"currentPlayerIndex": game.CurrentPlayerIndex,
				"state":              json.RawMessage(game.State),
				"updatedAt":          game.UpdatedAt,
			}
			payload["seats"] = seats
		}
	}
	respondJSON(w, http.StatusOK, payload)
}

type joinLobbyRequest struct {
	Password string `json:"password,omitempty"`
}

// JoinLobby seats the caller. This is the membership-creating join the
// transport's join-lobby handshake requires first.
func (api *API) JoinLobby(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := api.authenticate(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req joinLobbyRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	l, membership, err := api.Lobbies.JoinByCode(r.Context(), ps.ByName("code"), p, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	model, _ := l.Snapshot()
	payload := map[string]interface{}{
		"lobby":  model,
		"player": membership,
	}
	if gameID, ok := api.Runtime.GameByLobby(model.Code); ok {
		if game, _, ok := api.Runtime.Snapshot(gameID); ok {
			payload["game"] = map[string]interface{}{
				"id":       game.ID,
				"status":   string(game.Status),
				"gameType": string(game.GameType),
			}
		}
	}
	respondJSON(w, http.StatusOK, payload)
}

// LeaveLobby removes the caller's seat.
func (api *API) LeaveLobby(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := api.authenticate(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := api.Lobbies.Leave(r.Context(), ps.ByName("code"), p.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"left": true})
}

type addBotRequest struct {
	Difficulty string `json:"difficulty"`
}

// AddBot seats a bot. Creator only; waiting games only.
func (api *API) AddBot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := api.authenticate(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req addBotRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	difficulty := models.BotDifficulty(req.Difficulty)
	switch difficulty {
	case models.BotEasy, models.BotMedium, models.BotHard:
	case "":
		difficulty = models.BotMedium
	default:
		respondError(w, http.StatusBadRequest, ws.CodeInternalError, "unknown difficulty")
		return
	}

	botPrincipal, membership, err := api.Lobbies.AddBot(r.Context(), ps.ByName("code"), p.ID, difficulty)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	api.Bots.RegisterBot(botPrincipal.ID, difficulty)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"bot":    botPrincipal,
		"player": membership,
	})
}

// StartGame transitions the lobby's waiting game to playing. Creator only.
func (api *API) StartGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := api.authenticate(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	code := ps.ByName("code")
	gameID, ok := api.Runtime.GameByLobby(code)
	if !ok {
		writeDomainError(w, lobby.ErrLobbyNotFound)
		return
	}
	if err := api.Runtime.StartGame(r.Context(), gameID, p.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"gameId": gameID, "status": "playing"})
}

// NextRound starts the next round of a finished game. Any seated player.
func (api *API) NextRound(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := api.authenticate(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	gameID, ok := api.Runtime.GameByLobby(ps.ByName("code"))
	if !ok {
		writeDomainError(w, lobby.ErrLobbyNotFound)
		return
	}
	if err := api.Runtime.NextRound(r.Context(), gameID, p.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"gameId": gameID, "status": "playing"})
}

// LobbyQR renders a QR code PNG of the lobby join link.
func (api *API) LobbyQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if _, ok := api.Lobbies.Get(code); !ok {
		writeDomainError(w, lobby.ErrLobbyNotFound)
		return
	}
	joinURL := api.PublicBaseURL + "/lobby/" + code
	png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ws.CodeInternalError, "qr generation failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
