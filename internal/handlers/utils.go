package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/KovalDenys1/boardly/internal/identity"
	"github.com/KovalDenys1/boardly/internal/lobby"
	"github.com/KovalDenys1/boardly/internal/match"
	"github.com/KovalDenys1/boardly/internal/models"
	"github.com/KovalDenys1/boardly/internal/rules"
	"github.com/KovalDenys1/boardly/internal/ws"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
}

// authenticate resolves the request's principal from the Authorization
// header, the auth_token cookie, or the guest headers.
func (api *API) authenticate(r *http.Request) (*models.Principal, error) {
	cred := identity.Credential{}

	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		cred.RealtimeToken = strings.TrimPrefix(h, "Bearer ")
	} else if cookie, err := r.Cookie("auth_token"); err == nil {
		cred.SessionToken = cookie.Value
	} else if gt := r.Header.Get("X-Guest-Token"); gt != "" {
		cred.GuestToken = gt
	}
	return api.Resolver.Resolve(r.Context(), cred)
}

// writeDomainError maps registry/runtime errors onto the stable code set.
func writeDomainError(w http.ResponseWriter, err error) {
	if v, ok := rules.AsViolation(err); ok {
		respondError(w, http.StatusConflict, v.Code, v.Reason)
		return
	}
	switch {
	case errors.Is(err, lobby.ErrInvalidCode):
		respondError(w, http.StatusBadRequest, ws.CodeInvalidLobbyCode, err.Error())
	case errors.Is(err, lobby.ErrLobbyNotFound), errors.Is(err, match.ErrGameNotFound):
		respondError(w, http.StatusNotFound, ws.CodeLobbyNotFound, err.Error())
	case errors.Is(err, lobby.ErrAccessDenied):
		respondError(w, http.StatusForbidden, ws.CodeLobbyAccessDenied, err.Error())
	case errors.Is(err, lobby.ErrLobbyFull):
		respondError(w, http.StatusBadRequest, ws.CodeLobbyFull, err.Error())
	case errors.Is(err, lobby.ErrNotCreator), errors.Is(err, match.ErrNotCreator), errors.Is(err, lobby.ErrNotMember), errors.Is(err, match.ErrNotSeated):
		respondError(w, http.StatusForbidden, ws.CodeLobbyAccessDenied, err.Error())
	case errors.Is(err, lobby.ErrGameNotWaiting), errors.Is(err, match.ErrTooFew):
		respondError(w, http.StatusConflict, ws.CodeGameNotPlaying, err.Error())
	case errors.Is(err, identity.ErrAuthRequired):
		respondError(w, http.StatusUnauthorized, ws.CodeAuthRequired, "authentication required")
	case errors.Is(err, identity.ErrAuthInvalid):
		respondError(w, http.StatusUnauthorized, ws.CodeAuthInvalid, "authentication invalid")
	default:
		respondError(w, http.StatusInternalServerError, ws.CodeInternalError, "internal error")
	}
}
