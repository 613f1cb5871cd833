package rules

import (
	"encoding/json"
	"fmt"

	"github.com/KovalDenys1/boardly/internal/models"
)

// envelope is the self-describing wire form of a serialized game state, so
// restore is total without out-of-band type information.
type envelope struct {
	GameType models.GameType `json:"gameType"`
	State    json.RawMessage `json:"state"`
}

// MarshalEnvelope wraps an engine-specific state payload in the tagged wire
// format. Engines call this from Serialize.
func MarshalEnvelope(t models.GameType, statePayload interface{}) ([]byte, error) {
	raw, err := json.Marshal(statePayload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s state: %w", t, err)
	}
	return json.Marshal(envelope{GameType: t, State: raw})
}

// UnmarshalEnvelope splits a tagged blob into its game type and raw payload.
func UnmarshalEnvelope(data []byte) (models.GameType, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal state envelope: %w", err)
	}
	if !models.KnownGameType(env.GameType) {
		return "", nil, fmt.Errorf("unknown game type %q in state envelope", env.GameType)
	}
	return env.GameType, env.State, nil
}

// RestoreAny restores a blob through the registry by its embedded tag.
func (r *Registry) RestoreAny(data []byte) (State, error) {
	t, _, err := UnmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}
	e, ok := r.Engine(t)
	if !ok {
		return nil, fmt.Errorf("no engine registered for game type %q", t)
	}
	return e.Restore(data)
}
