package session

import (
	"fmt"
	"sync"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
)

// Table is the registry of live sessions, indexed by correlation id and by
// lead id. It enforces at most one live session per lead.
type Table struct {
	mu     sync.Mutex
	byID   map[string]*Session
	byLead map[string]*Session
}

func NewTable() *Table {
	return &Table{
		byID:   make(map[string]*Session),
		byLead: make(map[string]*Session),
	}
}

// Add registers a session. A second live session for the same lead is
// rejected with ErrAlreadyInCall.
func (t *Table) Add(s *Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.byLead[s.LeadID]; ok && !existing.Terminal() {
		return fmt.Errorf("%w: lead=%s", contractx.ErrAlreadyInCall, s.LeadID)
	}
	t.byID[s.CorrelationID] = s
	t.byLead[s.LeadID] = s
	return nil
}

// Lookup resolves a callback's correlation id to its session.
func (t *Table) Lookup(correlationID string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[correlationID]
	return s, ok
}

// Remove drops the session after its result has been finalized.
func (t *Table) Remove(correlationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[correlationID]
	if !ok {
		return
	}
	delete(t.byID, correlationID)
	if t.byLead[s.LeadID] == s {
		delete(t.byLead, s.LeadID)
	}
}

// Live returns a snapshot of registered sessions.
func (t *Table) Live() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, 0, len(t.byID))
	for _, s := range t.byID {
		out = append(out, s)
	}
	return out
}

// Len reports how many sessions are registered.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
