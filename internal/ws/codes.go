package ws

// Custom WebSocket close codes, continuing from the private-use range the
// standard leaves open.
const (
	CloseBadSubprotocol = 3000 // Client connected with an unsupported subprotocol.
	CloseAuthFailed     = 3001 // Credential verification failed during the handshake.
	CloseAuthTimeout    = 3002 // No identity material arrived within the auth deadline.
	CloseSlowConsumer   = 3003 // Outbound queue overflowed; client must reconnect and replay.
	CloseRateLimited    = 3004 // Client kept sending past repeated rate-limit errors.
)

// Stable error codes carried in server-error payloads.
const (
	CodeAuthRequired      = "AUTH_REQUIRED"
	CodeAuthInvalid       = "AUTH_INVALID"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInvalidLobbyCode  = "INVALID_LOBBY_CODE"
	CodeLobbyNotFound     = "LOBBY_NOT_FOUND"
	CodeLobbyAccessDenied = "LOBBY_ACCESS_DENIED"
	CodeLobbyFull         = "LOBBY_FULL"
	CodeJoinLobbyError    = "JOIN_LOBBY_ERROR"
	CodeInvalidMove       = "INVALID_MOVE"
	CodeNotYourTurn       = "NOT_YOUR_TURN"
	CodeGameNotPlaying    = "GAME_NOT_PLAYING"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ErrorPayload is the wire shape of a server-error event.
type ErrorPayload struct {
	Code           string      `json:"code"`
	Message        string      `json:"message"`
	TranslationKey string      `json:"translationKey,omitempty"`
	Details        interface{} `json:"details,omitempty"`
}

// translationKeys maps stable codes to client locale catalog keys.
var translationKeys = map[string]string{
	CodeAuthRequired:      "errors.authRequired",
	CodeAuthInvalid:       "errors.authInvalid",
	CodeRateLimitExceeded: "errors.rateLimited",
	CodeInvalidLobbyCode:  "errors.invalidLobbyCode",
	CodeLobbyNotFound:     "errors.lobbyNotFound",
	CodeLobbyAccessDenied: "errors.lobbyAccessDenied",
	CodeLobbyFull:         "errors.lobbyFull",
	CodeJoinLobbyError:    "errors.joinLobby",
	CodeInvalidMove:       "errors.invalidMove",
	CodeNotYourTurn:       "errors.notYourTurn",
	CodeGameNotPlaying:    "errors.gameNotPlaying",
	CodeInternalError:     "errors.internal",
}

func errorPayload(code, message string) ErrorPayload {
	return ErrorPayload{Code: code, Message: message, TranslationKey: translationKeys[code]}
}
