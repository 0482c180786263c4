// Package orchestrator drives the outbound campaign: it pulls leads from
// the CRM into the scheduler, places calls, and settles each finished
// session back into the CRM and the scheduler exactly once.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
	"github.com/vaani-ai/voice-sales-agent/agent/dialogue"
	"github.com/vaani-ai/voice-sales-agent/agent/scheduler"
	"github.com/vaani-ai/voice-sales-agent/agent/session"
	"github.com/vaani-ai/voice-sales-agent/pkg/telemetry"
)

type Config struct {
	FetchBatchSize     int           `envconfig:"FETCH_BATCH_SIZE" split_words:"true" default:"10"`
	MaxConcurrentCalls int           `envconfig:"MAX_CONCURRENT_CALLS" split_words:"true" default:"1"`
	PumpInterval       time.Duration `envconfig:"PUMP_INTERVAL" split_words:"true" default:"5s"`
	SilenceWindow      time.Duration `envconfig:"SILENCE_WINDOW" split_words:"true" default:"90s"`
	TurnCap            int           `envconfig:"TURN_CAP" split_words:"true" default:"8"`
}

type Engine struct {
	cfg       Config
	store     contractx.LeadStore
	telephony contractx.Telephony
	policy    contractx.DialoguePolicy
	sched     *scheduler.Engine
	table     *session.Table
	rule      session.QualificationRule
	now       func() time.Time

	leads *leadCache
}

func New(cfg Config, store contractx.LeadStore, telephony contractx.Telephony, policy contractx.DialoguePolicy, sched *scheduler.Engine) *Engine {
	if cfg.FetchBatchSize <= 0 {
		cfg.FetchBatchSize = 10
	}
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = 1
	}
	if cfg.PumpInterval <= 0 {
		cfg.PumpInterval = 5 * time.Second
	}
	if cfg.TurnCap <= 0 {
		cfg.TurnCap = 8
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		telephony: telephony,
		policy:    policy,
		sched:     sched,
		table:     session.NewTable(),
		rule:      session.DefaultQualificationRule,
		now:       time.Now,
		leads:     newLeadCache(),
	}
}

// WithRule swaps the qualification rule; the default requires budget and
// need plus one of authority or timeline.
func (e *Engine) WithRule(rule session.QualificationRule) *Engine {
	if rule != nil {
		e.rule = rule
	}
	return e
}

// Table exposes the live session registry to the webhook dispatcher.
func (e *Engine) Table() *session.Table {
	return e.table
}

// Admit caches a single lead and queues it, used by the one-off call
// command where the lead id is given directly.
func (e *Engine) Admit(lead contractx.Lead) bool {
	e.leads.put(lead)
	return e.sched.EnqueueNew(lead.ID)
}

// CallAndWait places one call and blocks until it settles.
func (e *Engine) CallAndWait(ctx context.Context, leadID string) error {
	correlationID, err := e.CallLead(ctx, leadID)
	if err != nil {
		return err
	}
	return e.waitSettled(ctx, correlationID)
}

// FetchLeads pulls one CRM page and admits unseen leads into the queue.
func (e *Engine) FetchLeads(ctx context.Context) (int, error) {
	leads, err := e.store.FetchNextLeads(ctx, e.cfg.FetchBatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch leads: %w", err)
	}
	admitted := 0
	for _, lead := range leads {
		e.leads.put(lead)
		if e.sched.EnqueueNew(lead.ID) {
			admitted++
		}
	}
	if admitted > 0 {
		log.Info().Int("admitted", admitted).Int("fetched", len(leads)).Msg("leads admitted to queue")
	}
	return admitted, nil
}

// CallLead places one call attempt for the lead and registers its session.
func (e *Engine) CallLead(ctx context.Context, leadID string) (string, error) {
	lead, ok := e.leads.get(leadID)
	if !ok {
		return "", fmt.Errorf("%w: lead=%s not cached", contractx.ErrNotFound, leadID)
	}

	attempt, err := e.sched.MarkAttemptStarted(leadID)
	if err != nil {
		return "", err
	}
	lead.Status = contractx.StatusInCall
	lead.AttemptCount = attempt
	lead.LastAttemptAt = e.now()
	e.leads.put(lead)

	correlationID := uuid.NewString()
	s := session.New(session.Params{
		LeadID:        leadID,
		LeadName:      lead.Name,
		Attempt:       attempt,
		CorrelationID: correlationID,
		Policy:        e.policy,
		Rule:          e.rule,
		TurnCap:       e.cfg.TurnCap,
		Lines: session.Lines{
			Opening:      dialogue.OpeningLine(lead.Name),
			Qualified:    dialogue.ClosingQualified,
			Disqualified: dialogue.ClosingDisqualified,
			Fallback:     dialogue.ClosingFallback,
		},
	})
	if err := e.table.Add(s); err != nil {
		e.sched.RecordDisposition(leadID, contractx.DispositionError, e.now())
		return "", err
	}

	// Best effort; the call proceeds even when the CRM write is down.
	inCall := contractx.StatusInCall
	if err := e.store.UpdateLead(ctx, leadID, contractx.LeadUpdate{Status: &inCall}); err != nil {
		log.Warn().Err(err).Str("lead_id", leadID).Msg("crm in-call status update failed")
	}

	handle, err := e.telephony.PlaceCall(ctx, lead.Phone, correlationID)
	if err != nil {
		log.Error().Err(err).Str("lead_id", leadID).Msg("call placement failed")
		s.ForceDrop()
		if _, ok := s.TakeResult(); ok {
			e.settle(ctx, session.Result{
				LeadID:        leadID,
				Attempt:       attempt,
				CorrelationID: correlationID,
				Disposition:   contractx.DispositionError,
				Summary:       "call placement failed",
				StartedAt:     e.now(),
				EndedAt:       e.now(),
			})
		}
		e.table.Remove(correlationID)
		return "", fmt.Errorf("place call: %w", err)
	}

	telemetry.CallsPlaced.Inc()
	telemetry.LiveSessions.Set(float64(e.table.Len()))
	log.Info().
		Str("lead_id", leadID).
		Int("attempt", attempt).
		Str("correlation_id", correlationID).
		Str("call_sid", handle.SID).
		Msg("call placed")
	return correlationID, nil
}

// Finalize settles a terminal session: scheduler bookkeeping, CRM
// write-back, call record, registry cleanup. Safe to call from multiple
// paths; only the caller that wins the result claim does the work.
func (e *Engine) Finalize(ctx context.Context, s *session.Session) bool {
	res, ok := s.TakeResult()
	if !ok {
		return false
	}
	e.settle(ctx, res)
	e.table.Remove(s.CorrelationID)
	telemetry.LiveSessions.Set(float64(e.table.Len()))
	return true
}

func (e *Engine) settle(ctx context.Context, res session.Result) {
	telemetry.Dispositions.WithLabelValues(string(res.Disposition)).Inc()

	outcome := e.sched.RecordDisposition(res.LeadID, res.Disposition, e.now())

	var status contractx.LeadStatus
	switch {
	case res.Disposition == contractx.DispositionQualified:
		status = contractx.StatusQualified
	case res.Disposition == contractx.DispositionDisqualified:
		status = contractx.StatusDisqualified
	case outcome == scheduler.OutcomeExhausted:
		status = contractx.StatusExhausted
	default:
		status = contractx.StatusScheduled
	}

	note := fmt.Sprintf("Call attempt %d: %s", res.Attempt, res.Disposition)
	if res.Summary != "" {
		note += ". " + res.Summary
	}
	if err := e.store.UpdateLead(ctx, res.LeadID, contractx.LeadUpdate{Status: &status, Description: note}); err != nil {
		log.Error().Err(err).Str("lead_id", res.LeadID).Msg("crm write-back failed")
	}

	rec := contractx.CallRecord{
		LeadID:        res.LeadID,
		Attempt:       res.Attempt,
		CorrelationID: res.CorrelationID,
		Turns:         res.Turns,
		Slots:         res.Slots,
		Disposition:   res.Disposition,
		Summary:       res.Summary,
		RecordingURL:  res.RecordingURL,
		StartedAt:     res.StartedAt,
		EndedAt:       res.EndedAt,
	}
	if err := e.store.AppendCallRecord(ctx, res.LeadID, rec); err != nil {
		log.Error().Err(err).Str("lead_id", res.LeadID).Msg("call record persist failed")
	}

	log.Info().
		Str("lead_id", res.LeadID).
		Int("attempt", res.Attempt).
		Str("disposition", string(res.Disposition)).
		Str("outcome", string(outcome)).
		Msg("call settled")
}

// Pump is the long-running loop behind the serve command: admit leads,
// sweep silent sessions, and dial while capacity allows.
func (e *Engine) Pump(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if e.sched.Stopped() {
			continue
		}

		if _, err := e.FetchLeads(ctx); err != nil {
			log.Warn().Err(err).Msg("lead fetch failed")
		}

		e.sweep(ctx)

		for e.table.Len() < e.cfg.MaxConcurrentCalls {
			leadID, ok := e.sched.NextReady(e.now())
			if !ok {
				break
			}
			if _, err := e.CallLead(ctx, leadID); err != nil {
				log.Warn().Err(err).Str("lead_id", leadID).Msg("call attempt failed")
			}
		}
	}
}

// sweep drops sessions that stopped receiving callbacks and finalizes any
// terminal session the webhook path has not settled yet.
func (e *Engine) sweep(ctx context.Context) {
	for _, s := range e.table.Live() {
		if e.cfg.SilenceWindow > 0 {
			s.ExpireIfIdle(e.now(), e.cfg.SilenceWindow)
		}
		if s.Terminal() {
			e.Finalize(ctx, s)
		}
	}
}

// RunCampaign places up to maxCalls sequential calls, waiting for each to
// settle before dialing the next. Used by the campaign CLI command.
func (e *Engine) RunCampaign(ctx context.Context, maxCalls int, delay time.Duration) (int, error) {
	if maxCalls <= 0 {
		maxCalls = 1
	}

	placed := 0
	for placed < maxCalls {
		if _, err := e.FetchLeads(ctx); err != nil {
			log.Warn().Err(err).Msg("lead fetch failed")
		}

		leadID, ok := e.sched.NextReady(e.now())
		if !ok {
			break
		}
		correlationID, err := e.CallLead(ctx, leadID)
		if err != nil {
			log.Warn().Err(err).Str("lead_id", leadID).Msg("call attempt failed")
			continue
		}
		placed++

		if err := e.waitSettled(ctx, correlationID); err != nil {
			return placed, err
		}
		if placed < maxCalls && delay > 0 {
			select {
			case <-ctx.Done():
				return placed, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return placed, nil
}

func (e *Engine) waitSettled(ctx context.Context, correlationID string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		s, ok := e.table.Lookup(correlationID)
		if !ok {
			return nil
		}
		if e.cfg.SilenceWindow > 0 {
			s.ExpireIfIdle(e.now(), e.cfg.SilenceWindow)
		}
		if s.Terminal() {
			e.Finalize(ctx, s)
			return nil
		}
	}
}

// StopAll freezes the scheduler and optionally hangs up live calls.
func (e *Engine) StopAll(ctx context.Context, endLive bool) {
	e.sched.Stop()
	if !endLive {
		return
	}
	for _, s := range e.table.Live() {
		if err := e.telephony.EndCall(ctx, s.CorrelationID); err != nil {
			log.Warn().Err(err).Str("correlation_id", s.CorrelationID).Msg("end call failed")
		}
		s.ForceDrop()
		e.Finalize(ctx, s)
	}
}

// Status is the operator snapshot served at /api/status.
type Status struct {
	Queue    scheduler.Stats `json:"queue"`
	Live     []LiveCall      `json:"live_calls"`
	Stopped  bool            `json:"stopped"`
	Reported time.Time       `json:"reported_at"`
}

type LiveCall struct {
	LeadID        string        `json:"lead_id"`
	CorrelationID string        `json:"correlation_id"`
	Attempt       int           `json:"attempt"`
	State         session.State `json:"state"`
}

func (e *Engine) Status() Status {
	live := e.table.Live()
	calls := make([]LiveCall, 0, len(live))
	for _, s := range live {
		calls = append(calls, LiveCall{
			LeadID:        s.LeadID,
			CorrelationID: s.CorrelationID,
			Attempt:       s.Attempt,
			State:         s.State(),
		})
	}
	snap := e.sched.Snapshot()
	return Status{Queue: snap, Live: calls, Stopped: snap.Stopped, Reported: e.now()}
}
