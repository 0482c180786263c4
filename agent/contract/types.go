package contract

import "time"

// LeadStatus tracks where a lead sits in the qualification pipeline.
// Qualified, Disqualified, and Exhausted are terminal: a lead in one of
// those states never re-enters the scheduling queue.
type LeadStatus string

const (
	StatusNew          LeadStatus = "new"
	StatusScheduled    LeadStatus = "scheduled"
	StatusInCall       LeadStatus = "in_call"
	StatusQualified    LeadStatus = "qualified"
	StatusDisqualified LeadStatus = "disqualified"
	StatusExhausted    LeadStatus = "exhausted"
)

func (s LeadStatus) Terminal() bool {
	switch s {
	case StatusQualified, StatusDisqualified, StatusExhausted:
		return true
	}
	return false
}

// Lead mirrors the CRM record the engine works against. The CRM owns the
// record; the engine only mutates attempt bookkeeping and final status.
type Lead struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	Company       string     `json:"company,omitempty"`
	Status        LeadStatus `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	LastAttemptAt time.Time  `json:"last_attempt_at,omitzero"`
}

// Disposition is the terminal outcome of one call attempt.
type Disposition string

const (
	DispositionQualified    Disposition = "qualified"
	DispositionDisqualified Disposition = "disqualified"
	DispositionNoAnswer     Disposition = "no_answer"
	DispositionDropped      Disposition = "dropped"
	DispositionError        Disposition = "error"
)

// Terminal reports whether the disposition settles the lead for good.
// Non-terminal dispositions earn the lead a retry ticket while attempts
// remain.
func (d Disposition) Terminal() bool {
	return d == DispositionQualified || d == DispositionDisqualified
}

type Speaker string

const (
	SpeakerAgent Speaker = "agent"
	SpeakerLead  Speaker = "lead"
)

// Turn is one utterance in a call transcript.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

/* ------------------------------ BANT slots ------------------------------ */

type SlotName string

const (
	SlotBudget    SlotName = "budget"
	SlotAuthority SlotName = "authority"
	SlotNeed      SlotName = "need"
	SlotTimeline  SlotName = "timeline"
)

// SlotOrder is the fixed questioning order.
var SlotOrder = [...]SlotName{SlotBudget, SlotAuthority, SlotNeed, SlotTimeline}

// SlotStatus is the tag of the slot variant. A slot is either untouched,
// captured with a concrete value, or inferred negative (the lead signalled
// "no", or the reply stayed unparsable after one retry).
type SlotStatus string

const (
	SlotUnknown    SlotStatus = "unknown"
	SlotCaptured   SlotStatus = "captured"
	SlotInferredNo SlotStatus = "inferred_no"
)

type SlotValue struct {
	Status SlotStatus `json:"status"`
	Value  string     `json:"value,omitempty"`
	// Retried marks that one clarification was already spent on this slot.
	// A second unparsable reply resolves it to InferredNo.
	Retried bool `json:"retried,omitempty"`
}

// Slots holds the four BANT dimensions. Missing map entries read as Unknown.
type Slots map[SlotName]SlotValue

func NewSlots() Slots {
	s := make(Slots, len(SlotOrder))
	for _, name := range SlotOrder {
		s[name] = SlotValue{Status: SlotUnknown}
	}
	return s
}

func (s Slots) Get(name SlotName) SlotValue {
	if s == nil {
		return SlotValue{Status: SlotUnknown}
	}
	v, ok := s[name]
	if !ok {
		return SlotValue{Status: SlotUnknown}
	}
	return v
}

func (s Slots) Capture(name SlotName, value string) {
	s[name] = SlotValue{Status: SlotCaptured, Value: value}
}

func (s Slots) InferNo(name SlotName) {
	s[name] = SlotValue{Status: SlotInferredNo}
}

func (s Slots) Captured(name SlotName) bool {
	return s.Get(name).Status == SlotCaptured
}

// NextUnfilled returns the first slot in SlotOrder still Unknown.
func (s Slots) NextUnfilled() (SlotName, bool) {
	for _, name := range SlotOrder {
		if s.Get(name).Status == SlotUnknown {
			return name, true
		}
	}
	return "", false
}

// Complete reports whether every slot is Captured or InferredNo.
func (s Slots) Complete() bool {
	_, open := s.NextUnfilled()
	return !open
}

// Clone returns an independent copy; sessions hand Slots across goroutine
// boundaries when finalizing.
func (s Slots) Clone() Slots {
	out := make(Slots, len(SlotOrder))
	for _, name := range SlotOrder {
		out[name] = s.Get(name)
	}
	return out
}
