// Package scheduler decides which lead to dial next. It keeps an immediate
// FIFO queue for fresh leads and a ticket map for retries, enforces the
// attempt cap and calling hours, and never dials a lead that already has a
// live call.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
	"github.com/vaani-ai/voice-sales-agent/pkg/telemetry"
)

type Config struct {
	MaxAttempts       int           `envconfig:"MAX_ATTEMPTS" split_words:"true" default:"3"`
	RetryDelay        time.Duration `envconfig:"RETRY_DELAY" split_words:"true" default:"4h"`
	CallingHoursStart int           `envconfig:"CALLING_HOURS_START" split_words:"true" default:"9"`
	CallingHoursEnd   int           `envconfig:"CALLING_HOURS_END" split_words:"true" default:"19"`
	Timezone          string        `envconfig:"TIMEZONE" split_words:"true" default:"Asia/Kolkata"`
}

// Outcome reports what RecordDisposition did with the attempt.
type Outcome string

const (
	// OutcomeFinal means the lead reached a terminal disposition.
	OutcomeFinal Outcome = "final"
	// OutcomeRetryScheduled means a retry ticket was created.
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	// OutcomeExhausted means the attempt cap was reached without contact.
	OutcomeExhausted Outcome = "exhausted"
)

type leadPhase string

const (
	phaseQueued  leadPhase = "queued"
	phaseWaiting leadPhase = "waiting_retry"
	phaseInCall  leadPhase = "in_call"
	phaseDone    leadPhase = "done"
)

type leadRec struct {
	phase    leadPhase
	attempts int
}

type ticket struct {
	notBefore time.Time
}

// Engine is safe for concurrent use; the orchestrator's pump and the
// webhook finalization path both touch it.
type Engine struct {
	cfg Config
	loc *time.Location

	mu        sync.Mutex
	stopped   bool
	immediate []string // fresh leads, FIFO
	tickets   map[string]ticket
	leads     map[string]*leadRec
}

func New(cfg Config) (*Engine, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 4 * time.Hour
	}
	if cfg.CallingHoursStart < 0 || cfg.CallingHoursEnd > 24 || cfg.CallingHoursStart >= cfg.CallingHoursEnd {
		return nil, fmt.Errorf("%w: calling hours %d..%d", contractx.ErrValidation, cfg.CallingHoursStart, cfg.CallingHoursEnd)
	}

	loc := time.Local
	if cfg.Timezone != "" {
		parsed, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: timezone %q: %v", contractx.ErrValidation, cfg.Timezone, err)
		}
		loc = parsed
	}

	return &Engine{
		cfg:     cfg,
		loc:     loc,
		tickets: make(map[string]ticket),
		leads:   make(map[string]*leadRec),
	}, nil
}

func MustNew(cfg Config) *Engine {
	e, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// WithinCallingHours reports whether now falls inside the dialing window.
func (e *Engine) WithinCallingHours(now time.Time) bool {
	hour := now.In(e.loc).Hour()
	return hour >= e.cfg.CallingHoursStart && hour < e.cfg.CallingHoursEnd
}

// EnqueueNew admits a lead into the immediate queue. Leads already queued,
// waiting on a retry ticket, in a call, or finished are left alone, so
// re-fetching the same CRM page is harmless.
func (e *Engine) EnqueueNew(leadID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return false
	}
	if _, known := e.leads[leadID]; known {
		return false
	}
	e.leads[leadID] = &leadRec{phase: phaseQueued}
	e.immediate = append(e.immediate, leadID)
	log.Debug().Str("lead_id", leadID).Msg("lead queued")
	return true
}

// NextReady pops the next dialable lead. Fresh leads go before due retry
// tickets; among due tickets the earliest deadline wins. Outside calling
// hours nothing is dialable.
func (e *Engine) NextReady(now time.Time) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || !e.WithinCallingHours(now) {
		return "", false
	}

	if len(e.immediate) > 0 {
		leadID := e.immediate[0]
		e.immediate = e.immediate[1:]
		return leadID, true
	}

	due := make([]string, 0, len(e.tickets))
	for leadID, t := range e.tickets {
		if !t.notBefore.After(now) {
			due = append(due, leadID)
		}
	}
	if len(due) == 0 {
		return "", false
	}
	sort.Slice(due, func(i, j int) bool {
		return e.tickets[due[i]].notBefore.Before(e.tickets[due[j]].notBefore)
	})
	leadID := due[0]
	delete(e.tickets, leadID)
	return leadID, true
}

// MarkAttemptStarted transitions the lead into the in-call phase and
// returns the 1-based attempt number.
func (e *Engine) MarkAttemptStarted(leadID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.leads[leadID]
	if !ok {
		return 0, fmt.Errorf("%w: lead=%s", contractx.ErrNotFound, leadID)
	}
	if rec.phase == phaseInCall {
		return 0, fmt.Errorf("%w: lead=%s", contractx.ErrAlreadyInCall, leadID)
	}
	if rec.phase == phaseDone {
		return 0, fmt.Errorf("%w: lead=%s already finished", contractx.ErrValidation, leadID)
	}
	rec.phase = phaseInCall
	rec.attempts++
	return rec.attempts, nil
}

// RecordDisposition settles a finished attempt. Terminal dispositions end
// the lead; retryable ones earn a ticket until the attempt cap, after
// which the lead is exhausted.
func (e *Engine) RecordDisposition(leadID string, d contractx.Disposition, now time.Time) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.leads[leadID]
	if !ok {
		rec = &leadRec{phase: phaseInCall, attempts: 1}
		e.leads[leadID] = rec
	}

	if d.Terminal() {
		rec.phase = phaseDone
		delete(e.tickets, leadID)
		return OutcomeFinal
	}

	if rec.attempts >= e.cfg.MaxAttempts {
		rec.phase = phaseDone
		delete(e.tickets, leadID)
		telemetry.LeadsExhausted.Inc()
		log.Info().Str("lead_id", leadID).Int("attempts", rec.attempts).Msg("lead exhausted")
		return OutcomeExhausted
	}

	rec.phase = phaseWaiting
	e.tickets[leadID] = ticket{notBefore: now.Add(e.cfg.RetryDelay)}
	telemetry.RetriesScheduled.Inc()
	log.Info().
		Str("lead_id", leadID).
		Str("disposition", string(d)).
		Time("not_before", now.Add(e.cfg.RetryDelay)).
		Msg("retry scheduled")
	return OutcomeRetryScheduled
}

// Stop freezes the engine: queued work stays where it is and NextReady
// returns nothing.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
}

// Stopped reports whether Stop was called.
func (e *Engine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Stats is the operator-facing queue snapshot.
type Stats struct {
	Queued       int  `json:"queued"`
	WaitingRetry int  `json:"waiting_retry"`
	InCall       int  `json:"in_call"`
	Done         int  `json:"done"`
	Stopped      bool `json:"stopped"`
}

func (e *Engine) Snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{Stopped: e.stopped}
	for _, rec := range e.leads {
		switch rec.phase {
		case phaseQueued:
			s.Queued++
		case phaseWaiting:
			s.WaitingRetry++
		case phaseInCall:
			s.InCall++
		case phaseDone:
			s.Done++
		}
	}
	return s
}
