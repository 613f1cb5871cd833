package rules

import "errors"

// Stable rejection codes surfaced to clients as server-error payloads.
const (
	CodeInvalidMove    = "INVALID_MOVE"
	CodeNotYourTurn    = "NOT_YOUR_TURN"
	CodeGameNotPlaying = "GAME_NOT_PLAYING"
)

// Violation is a structured move rejection. It is reported to the submitting
// connection only and never broadcast.
type Violation struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (v *Violation) Error() string { return v.Code + ": " + v.Reason }

// NotYourTurn rejects a move submitted out of turn.
func NotYourTurn() *Violation {
	return &Violation{Code: CodeNotYourTurn, Reason: "it is not your turn"}
}

// NotPlaying rejects a move while the round is not in progress.
func NotPlaying() *Violation {
	return &Violation{Code: CodeGameNotPlaying, Reason: "game is not in progress"}
}

// Invalid rejects a malformed or illegal move.
func Invalid(reason string) *Violation {
	return &Violation{Code: CodeInvalidMove, Reason: reason}
}

// AsViolation extracts a *Violation from err, if it is one.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
