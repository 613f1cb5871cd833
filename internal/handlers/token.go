package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/KovalDenys1/boardly/internal/auth"
	"github.com/KovalDenys1/boardly/internal/identity"
	"github.com/KovalDenys1/boardly/internal/ws"
)

// SocketToken mints the short-lived token authenticated users present when
// opening the realtime transport.
func (api *API) SocketToken(w http.ResponseWriter, r *http.Request) {
	p, err := api.authenticate(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	token, err := api.Tokens.CreateRealtimeToken(p.ID, auth.DefaultRealtimeTokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ws.CodeInternalError, "token minting failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"expiresIn": int(auth.DefaultRealtimeTokenTTL.Seconds()),
	})
}

type createGuestRequest struct {
	DisplayName string `json:"displayName"`
}

// CreateGuest provisions a guest identity and returns its signed token. The
// guest id follows the guest-<rand> shape.
func (api *API) CreateGuest(w http.ResponseWriter, r *http.Request) {
	var req createGuestRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.DisplayName == "" {
		req.DisplayName = "Guest"
	}

	guestID := identity.NewGuestID(uuid.NewString())
	token, err := api.Tokens.CreateGuestToken(guestID, req.DisplayName, auth.DefaultGuestTokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ws.CodeInternalError, "token minting failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"guestId":     guestID,
		"displayName": req.DisplayName,
		"guestToken":  token,
	})
}
