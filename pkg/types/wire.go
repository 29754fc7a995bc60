package types

import (
	"encoding/json"
	"time"
)

// Request is one cross-process operation addressed to the model host.
// Exactly one request may be unanswered per channel; a newer request
// overwrites an unconsumed one rather than queueing behind it.
type Request struct {
	// Globally unique correlation token linking this request to its response.
	ID string `json:"id"`
	// Operation to perform.
	Action Action `json:"action"`
	// Action-specific payload (GeneratePayload, EmbedPayload); empty for
	// load/unload/status actions.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Wall-clock time the caller issued the request.
	IssuedAt time.Time `json:"issued_at"`
}

// GeneratePayload parameterizes an ActionGenerate request.
type GeneratePayload struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	// Slot to generate with; defaults to utility when empty.
	Slot Slot `json:"slot,omitempty"`
}

// EmbedPayload parameterizes an ActionEmbed request.
type EmbedPayload struct {
	Texts []string `json:"texts"`
}

// Response answers exactly one Request, identified by RequestID.
type Response struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	// Action-specific result (GenerateResult, EmbedResult, StatusResult).
	Data json.RawMessage `json:"data,omitempty"`
	// Human-readable failure description when Success is false.
	Error string `json:"error,omitempty"`
}

// GenerateResult carries generated text back to the caller.
type GenerateResult struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
	// True when the host shrank the token budget under memory pressure.
	Truncated bool `json:"truncated,omitempty"`
}

// EmbedResult carries one vector per input text, in input order.
type EmbedResult struct {
	Vectors [][]float32 `json:"vectors"`
}

// StatusResult is the operator-facing snapshot returned by ActionStatus.
type StatusResult struct {
	ModelStates map[Slot]ModelState `json:"model_states"`
	Memory      MemorySnapshot      `json:"memory"`
	UptimeSecs  int64               `json:"uptime_secs"`
	CrashCount  int                 `json:"crash_count"`
	// Requests dropped by single-slot overwrite since host start.
	Overwrites uint64 `json:"overwrites"`
}

// ResidentCount counts slots currently in StateReady.
func (s StatusResult) ResidentCount() int {
	n := 0
	for _, st := range s.ModelStates {
		if st == StateReady {
			n++
		}
	}
	return n
}

// ErrorResponse is the JSON error body of the operator HTTP surface.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// MarshalPayload encodes v into a Request payload.
func MarshalPayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
