package session

import (
	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
)

// QualificationRule maps a final slot map onto a qualified or disqualified
// disposition. Deployments with different criteria swap in their own rule.
type QualificationRule func(contractx.Slots) contractx.Disposition

// DefaultQualificationRule qualifies a lead when budget and need are both
// captured and at least one of authority or timeline is captured.
func DefaultQualificationRule(slots contractx.Slots) contractx.Disposition {
	if !slots.Captured(contractx.SlotBudget) || !slots.Captured(contractx.SlotNeed) {
		return contractx.DispositionDisqualified
	}
	if slots.Captured(contractx.SlotAuthority) || slots.Captured(contractx.SlotTimeline) {
		return contractx.DispositionQualified
	}
	return contractx.DispositionDisqualified
}

// RequireAll qualifies only when every slot is captured. Kept as a stricter
// alternative for teams that treat partial answers as a no.
func RequireAll(slots contractx.Slots) contractx.Disposition {
	for _, name := range contractx.SlotOrder {
		if !slots.Captured(name) {
			return contractx.DispositionDisqualified
		}
	}
	return contractx.DispositionQualified
}
