// Package session owns one call's lifecycle from placement to disposition:
// an explicit state machine keyed by correlation id, advanced only by
// inbound provider callbacks. The transition function is total; every
// state and event pair is either a transition or a deliberate ignore.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
)

type State string

const (
	StateDialing     State = "dialing"
	StateGreeting    State = "greeting"
	StateQuestioning State = "questioning"
	StateScoring     State = "scoring"
	StateClosing     State = "closing"
	StateTerminal    State = "terminal"
)

// InstructionKind tells the webhook layer how to answer the callback that
// produced it. Each handled event yields exactly one instruction.
type InstructionKind string

const (
	// InstructAsk speaks text and gathers the lead's spoken reply.
	InstructAsk InstructionKind = "ask"
	// InstructSayHangup speaks text and ends the call.
	InstructSayHangup InstructionKind = "say_hangup"
	// InstructNone acknowledges the callback without touching the call.
	InstructNone InstructionKind = "none"
)

type Instruction struct {
	Kind InstructionKind
	Text string
}

func none() Instruction { return Instruction{Kind: InstructNone} }

// Lines holds the fixed agent-authored lines for one session.
type Lines struct {
	Opening      string
	Qualified    string
	Disqualified string
	Fallback     string // spoken when the dialogue policy fails mid-call
}

type Params struct {
	LeadID        string
	LeadName      string
	Attempt       int
	CorrelationID string
	Policy        contractx.DialoguePolicy
	Rule          QualificationRule
	Lines         Lines
	// TurnCap bounds lead exchanges; when reached, scoring is forced
	// regardless of slot completeness.
	TurnCap int
	Now     func() time.Time
}

// Result is the finalized outcome handed to the orchestrator exactly once.
type Result struct {
	LeadID        string
	Attempt       int
	CorrelationID string
	Disposition   contractx.Disposition
	Turns         []contractx.Turn
	Slots         contractx.Slots
	Summary       string
	RecordingURL  string
	StartedAt     time.Time
	EndedAt       time.Time
}

// Session is one live call attempt. All mutation happens under the
// session's own mutex so callbacks for unrelated leads never contend.
type Session struct {
	LeadID        string
	LeadName      string
	Attempt       int
	CorrelationID string

	policy  contractx.DialoguePolicy
	rule    QualificationRule
	lines   Lines
	turnCap int
	now     func() time.Time

	mu           sync.Mutex
	state        State
	disposition  contractx.Disposition
	pending      contractx.Disposition // decided at scoring, applied at terminal
	turns        []contractx.Turn
	slots        contractx.Slots
	exchanges    int
	summary      string
	recordingURL string
	startedAt    time.Time
	endedAt      time.Time
	lastEventAt  time.Time
	claimed      bool
}

func New(p Params) *Session {
	if p.TurnCap <= 0 {
		p.TurnCap = 8
	}
	if p.Rule == nil {
		p.Rule = DefaultQualificationRule
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	now := p.Now()
	return &Session{
		LeadID:        p.LeadID,
		LeadName:      p.LeadName,
		Attempt:       p.Attempt,
		CorrelationID: p.CorrelationID,
		policy:        p.Policy,
		rule:          p.Rule,
		lines:         p.Lines,
		turnCap:       p.TurnCap,
		now:           p.Now,
		state:         StateDialing,
		slots:         contractx.NewSlots(),
		startedAt:     now,
		lastEventAt:   now,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Terminal() bool {
	return s.State() == StateTerminal
}

// TurnCount reports how many turns the transcript holds.
func (s *Session) TurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

/* ------------------------------ transitions ----------------------------- */

// HandleAnswered processes the call-connected event. Re-delivery while
// already greeting (or later) is a no-op: the opening turn is appended
// exactly once.
func (s *Session) HandleAnswered(ctx context.Context) Instruction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.state != StateDialing {
		return none()
	}
	s.state = StateGreeting
	s.appendTurn(contractx.SpeakerAgent, s.lines.Opening)
	return Instruction{Kind: InstructAsk, Text: s.lines.Opening}
}

// HandleStatus processes a call-status callback. Events the current state
// has no use for are acknowledged and dropped.
func (s *Session) HandleStatus(ctx context.Context, status string) Instruction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	switch strings.ToLower(strings.TrimSpace(status)) {
	case "answered", "in-progress":
		if s.state == StateDialing {
			s.state = StateGreeting
			s.appendTurn(contractx.SpeakerAgent, s.lines.Opening)
			return Instruction{Kind: InstructAsk, Text: s.lines.Opening}
		}
		return none()

	case "no-answer", "busy", "failed", "canceled":
		switch s.state {
		case StateDialing:
			s.terminate(contractx.DispositionNoAnswer)
		case StateTerminal:
			// late duplicate
		default:
			s.terminate(contractx.DispositionDropped)
		}
		return none()

	case "completed":
		switch s.state {
		case StateDialing:
			s.terminate(contractx.DispositionNoAnswer)
		case StateClosing:
			s.terminate(s.pending)
		case StateTerminal:
			// duplicate delivery
		default:
			s.terminate(contractx.DispositionDropped)
		}
		return none()

	default:
		// initiated, ringing, and anything unrecognized
		return none()
	}
}

// HandleSpeech processes the lead's utterance: appends the lead turn,
// consults the dialogue policy, and returns the next question or the
// closing line. The per-session lock is held across the policy call; other
// sessions' callbacks are unaffected.
func (s *Session) HandleSpeech(ctx context.Context, text string) Instruction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	switch s.state {
	case StateGreeting:
		s.state = StateQuestioning
	case StateQuestioning:
	default:
		// speech after closing/terminal, or before the call connected
		return none()
	}

	text = strings.TrimSpace(text)
	s.appendTurn(contractx.SpeakerLead, text)
	s.exchanges++

	if s.exchanges >= s.turnCap {
		log.Debug().Str("lead_id", s.LeadID).Int("exchanges", s.exchanges).Msg("turn cap reached, forcing scoring")
		return s.score(ctx)
	}

	decision, err := s.policy.Decide(ctx, contractx.PolicyRequest{
		LeadName:  s.LeadName,
		Turns:     append([]contractx.Turn(nil), s.turns...),
		Slots:     s.slots.Clone(),
		Utterance: text,
	})
	if err != nil {
		log.Error().Err(err).Str("lead_id", s.LeadID).Msg("dialogue policy failed, ending call")
		return s.closeWith(contractx.DispositionError, s.lines.Fallback)
	}

	for name, val := range decision.SlotsPatch {
		s.slots[name] = val
	}

	if decision.Complete {
		return s.score(ctx)
	}

	s.appendTurn(contractx.SpeakerAgent, decision.NextQuestion)
	return Instruction{Kind: InstructAsk, Text: decision.NextQuestion}
}

// HandleRecording stores the recording URL. Valid in any state including
// Terminal; recording callbacks routinely arrive after the call ended.
func (s *Session) HandleRecording(url string) Instruction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if url != "" {
		s.recordingURL = url
	}
	return none()
}

// ExpireIfIdle drops a non-terminal session that has not seen a callback
// within window. Returns true when the session was terminated.
//
// A session mid-callback holds its lock, possibly across a model call.
// Busy means not idle, so the sweep skips it instead of blocking.
func (s *Session) ExpireIfIdle(now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	if s.state == StateTerminal {
		return false
	}
	if now.Sub(s.lastEventAt) < window {
		return false
	}
	s.terminate(contractx.DispositionDropped)
	return true
}

// ForceDrop terminates the session with disposition Dropped, used by the
// operator stop command. No-op when already terminal.
func (s *Session) ForceDrop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminal {
		return false
	}
	s.terminate(contractx.DispositionDropped)
	return true
}

// TakeResult claims the finalized result. It returns ok exactly once per
// session, the first time it is called after the terminal transition.
// Dedup of disposition handling hangs off this claim.
func (s *Session) TakeResult() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateTerminal || s.claimed {
		return Result{}, false
	}
	s.claimed = true
	return Result{
		LeadID:        s.LeadID,
		Attempt:       s.Attempt,
		CorrelationID: s.CorrelationID,
		Disposition:   s.disposition,
		Turns:         append([]contractx.Turn(nil), s.turns...),
		Slots:         s.slots.Clone(),
		Summary:       s.summary,
		RecordingURL:  s.recordingURL,
		StartedAt:     s.startedAt,
		EndedAt:       s.endedAt,
	}, true
}

/* -------------------------------- helpers ------------------------------- */

// score applies the qualification rule and moves through Scoring into
// Closing. Caller holds the lock.
func (s *Session) score(ctx context.Context) Instruction {
	s.state = StateScoring
	disposition := s.rule(s.slots)
	s.summary = s.policy.Summarize(ctx, s.turns, s.slots.Clone(), disposition)

	line := s.lines.Disqualified
	if disposition == contractx.DispositionQualified {
		line = s.lines.Qualified
	}
	return s.closeWith(disposition, line)
}

// closeWith delivers the closing remark and arms the pending disposition,
// applied when the provider reports the call completed. Caller holds the
// lock.
func (s *Session) closeWith(d contractx.Disposition, line string) Instruction {
	s.state = StateClosing
	s.pending = d
	s.appendTurn(contractx.SpeakerAgent, line)
	return Instruction{Kind: InstructSayHangup, Text: line}
}

func (s *Session) terminate(d contractx.Disposition) {
	s.state = StateTerminal
	s.disposition = d
	s.endedAt = s.now()
}

func (s *Session) appendTurn(speaker contractx.Speaker, text string) {
	s.turns = append(s.turns, contractx.Turn{Speaker: speaker, Text: text, At: s.now()})
}

func (s *Session) touch() {
	s.lastEventAt = s.now()
}
