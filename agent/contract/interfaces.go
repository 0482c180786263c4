package contract

import (
	"context"
	"time"
)

// LeadStore is the CRM boundary. Implementations translate transport
// failures into ErrProvider and missing records into ErrNotFound.
type LeadStore interface {
	FetchNextLeads(ctx context.Context, limit int) ([]Lead, error)
	UpdateLead(ctx context.Context, leadID string, update LeadUpdate) error
	AppendCallRecord(ctx context.Context, leadID string, rec CallRecord) error
}

// LeadUpdate carries the fields the engine is allowed to write back.
// Nil pointers mean "leave untouched".
type LeadUpdate struct {
	Status      *LeadStatus
	Description string
}

// CallRecord is the persisted outcome of one call attempt.
type CallRecord struct {
	LeadID        string      `json:"lead_id"`
	Attempt       int         `json:"attempt"`
	CorrelationID string      `json:"correlation_id"`
	Turns         []Turn      `json:"turns"`
	Slots         Slots       `json:"slots"`
	Disposition   Disposition `json:"disposition"`
	Summary       string      `json:"summary,omitempty"`
	RecordingURL  string      `json:"recording_url,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	EndedAt       time.Time   `json:"ended_at"`
}

// CallHandle identifies a placed call at the provider.
type CallHandle struct {
	SID    string
	Status string
}

// Telephony is the voice-provider boundary. Speaking happens in-band: the
// webhook layer answers each provider callback with the session's next
// instruction, so the interface only covers out-of-band operations.
type Telephony interface {
	PlaceCall(ctx context.Context, phone, correlationID string) (CallHandle, error)
	EndCall(ctx context.Context, correlationID string) error
}

// PolicyRequest is the dialogue policy input: full turn history, current
// slots, and the lead's latest utterance.
type PolicyRequest struct {
	LeadName  string
	Turns     []Turn
	Slots     Slots
	Utterance string
}

// PolicyDecision is either the next question to ask or a completion signal.
// SlotsPatch carries slot updates extracted from the utterance; the session
// applies the patch before acting on the decision.
type PolicyDecision struct {
	Complete     bool
	NextQuestion string
	SlotsPatch   map[SlotName]SlotValue
}

// DialoguePolicy decides the next conversational move. Implementations
// recover from model failures internally (degrade to Inferred-No and bank
// questions) and return an error only when the call context is dead.
type DialoguePolicy interface {
	Decide(ctx context.Context, req PolicyRequest) (PolicyDecision, error)
	Summarize(ctx context.Context, turns []Turn, slots Slots, disposition Disposition) string
}
