package messaging

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire form of a published event. MQTT 3.1.1 has no user
// headers, so the envelope carries them alongside the payload.
type Envelope struct {
	Headers map[string]string `json:"headers"`
	Payload json.RawMessage   `json:"payload"`
}

// Seal marshals an envelope for publishing.
func Seal(headers map[string]string, payload []byte) ([]byte, error) {
	data, err := json.Marshal(Envelope{Headers: headers, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("seal envelope: %w", err)
	}
	return data, nil
}

// Open unmarshals a consumed envelope.
func Open(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("open envelope: %w", err)
	}
	if env.Headers == nil {
		env.Headers = map[string]string{}
	}
	return env, nil
}
