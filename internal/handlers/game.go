package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/KovalDenys1/boardly/internal/match"
	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/ws"
)

type submitMoveRequest struct {
	Move struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
	} `json:"move"`
}

// SubmitMove is the HTTP mirror of the transport's state-change action; both
// paths go through the match runtime. The caller's principal overrides any
// client-supplied player id.
func (api *API) SubmitMove(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := api.authenticate(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	gameID, err := uuid.Parse(ps.ByName("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ws.CodeInternalError, "invalid game id")
		return
	}

	var req submitMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Move.Type == "" {
		respondError(w, http.StatusBadRequest, ws.CodeInvalidMove, "malformed move")
		return
	}

	move := models.Move{
		PlayerID:  p.ID,
		Type:      req.Move.Type,
		Data:      req.Move.Data,
		Timestamp: time.Now(),
	}
	res, err := api.Runtime.SubmitMove(r.Context(), gameID, move)
	if err != nil {
		if err == match.ErrGameNotFound {
			respondError(w, http.StatusNotFound, ws.CodeLobbyNotFound, "game not found")
			return
		}
		respondError(w, http.StatusInternalServerError, ws.CodeInternalError, "move could not be processed")
		return
	}
	if !res.Accepted {
		respondError(w, http.StatusConflict, res.Violation.Code, res.Violation.Reason)
		return
	}

	game, _, _ := api.Runtime.Snapshot(gameID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accepted":           true,
		"status":             string(game.Status),
		"currentPlayerIndex": game.CurrentPlayerIndex,
		"state":              json.RawMessage(game.State),
		"sequenceId":         res.Sequence,
	})
}
