package session

import (
	"context"
	"errors"
	"testing"
	"time"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
)

var testLines = Lines{
	Opening:      "namaste, main Vaani bol rahi hoon",
	Qualified:    "dhanyavaad, hamari team aapse sampark karegi",
	Disqualified: "aapke samay ke liye dhanyavaad",
	Fallback:     "takneeki samasya ke liye khed hai",
}

// scriptedPolicy returns queued decisions in order, then keeps asking a
// filler question.
type scriptedPolicy struct {
	decisions []contractx.PolicyDecision
	err       error
	calls     int
	summary   string
}

func (p *scriptedPolicy) Decide(_ context.Context, _ contractx.PolicyRequest) (contractx.PolicyDecision, error) {
	p.calls++
	if p.err != nil {
		return contractx.PolicyDecision{}, p.err
	}
	if len(p.decisions) == 0 {
		return contractx.PolicyDecision{NextQuestion: "aur kuch bataiye?"}, nil
	}
	d := p.decisions[0]
	p.decisions = p.decisions[1:]
	return d, nil
}

func (p *scriptedPolicy) Summarize(_ context.Context, _ []contractx.Turn, _ contractx.Slots, _ contractx.Disposition) string {
	if p.summary != "" {
		return p.summary
	}
	return "summary"
}

func captured(v string) contractx.SlotValue {
	return contractx.SlotValue{Status: contractx.SlotCaptured, Value: v}
}

func newTestSession(t *testing.T, policy contractx.DialoguePolicy) *Session {
	t.Helper()
	return New(Params{
		LeadID:        "lead-1",
		LeadName:      "Asha",
		Attempt:       1,
		CorrelationID: "corr-1",
		Policy:        policy,
		Lines:         testLines,
		TurnCap:       8,
	})
}

func TestAnsweredOpensExactlyOnce(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &scriptedPolicy{})
	ctx := context.Background()

	ins := s.HandleAnswered(ctx)
	if ins.Kind != InstructAsk || ins.Text != testLines.Opening {
		t.Fatalf("first answered: got %+v, want ask with opening line", ins)
	}
	if got := s.State(); got != StateGreeting {
		t.Fatalf("state after answered = %v, want %v", got, StateGreeting)
	}

	// Duplicate delivery of the same event must not speak again.
	dup := s.HandleAnswered(ctx)
	if dup.Kind != InstructNone {
		t.Fatalf("duplicate answered: got kind %v, want none", dup.Kind)
	}
	if got := s.TurnCount(); got != 1 {
		t.Fatalf("turns after duplicate answered = %d, want 1", got)
	}
}

func TestQualifiedFlow(t *testing.T) {
	t.Parallel()

	policy := &scriptedPolicy{
		decisions: []contractx.PolicyDecision{
			{
				SlotsPatch:   map[contractx.SlotName]contractx.SlotValue{contractx.SlotBudget: captured("5 lakh")},
				NextQuestion: "kya aap kharidne ka nirnay lete hain?",
			},
			{
				SlotsPatch:   map[contractx.SlotName]contractx.SlotValue{contractx.SlotAuthority: captured("haan")},
				NextQuestion: "aapko kis cheez ki zaroorat hai?",
			},
			{
				SlotsPatch: map[contractx.SlotName]contractx.SlotValue{
					contractx.SlotNeed:     captured("CRM software"),
					contractx.SlotTimeline: captured("agle mahine"),
				},
				Complete: true,
			},
		},
		summary: "budget 5 lakh, decision maker, needs CRM next month",
	}
	s := newTestSession(t, policy)
	ctx := context.Background()

	s.HandleAnswered(ctx)
	for _, utterance := range []string{"paanch lakh tak", "haan main hi decide karta hoon"} {
		ins := s.HandleSpeech(ctx, utterance)
		if ins.Kind != InstructAsk {
			t.Fatalf("mid-call speech %q: got kind %v, want ask", utterance, ins.Kind)
		}
	}

	ins := s.HandleSpeech(ctx, "CRM chahiye, agle mahine tak")
	if ins.Kind != InstructSayHangup || ins.Text != testLines.Qualified {
		t.Fatalf("final speech: got %+v, want say_hangup with qualified line", ins)
	}
	if got := s.State(); got != StateClosing {
		t.Fatalf("state after scoring = %v, want %v", got, StateClosing)
	}

	s.HandleStatus(ctx, "completed")

	res, ok := s.TakeResult()
	if !ok {
		t.Fatal("TakeResult after completed: got !ok")
	}
	if res.Disposition != contractx.DispositionQualified {
		t.Fatalf("disposition = %v, want %v", res.Disposition, contractx.DispositionQualified)
	}
	if res.Summary != policy.summary {
		t.Fatalf("summary = %q, want %q", res.Summary, policy.summary)
	}
	if !res.Slots.Captured(contractx.SlotBudget) || !res.Slots.Captured(contractx.SlotNeed) {
		t.Fatalf("result slots missing captures: %+v", res.Slots)
	}
}

func TestNoAnswerWhileDialing(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &scriptedPolicy{})
	s.HandleStatus(context.Background(), "no-answer")

	res, ok := s.TakeResult()
	if !ok {
		t.Fatal("TakeResult: got !ok")
	}
	if res.Disposition != contractx.DispositionNoAnswer {
		t.Fatalf("disposition = %v, want %v", res.Disposition, contractx.DispositionNoAnswer)
	}
	if len(res.Turns) != 0 {
		t.Fatalf("turns on unanswered call = %d, want 0", len(res.Turns))
	}
}

func TestHangupMidQuestioningIsDropped(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &scriptedPolicy{})
	ctx := context.Background()

	s.HandleAnswered(ctx)
	s.HandleSpeech(ctx, "haan boliye")
	s.HandleStatus(ctx, "completed")

	res, ok := s.TakeResult()
	if !ok {
		t.Fatal("TakeResult: got !ok")
	}
	if res.Disposition != contractx.DispositionDropped {
		t.Fatalf("disposition = %v, want %v", res.Disposition, contractx.DispositionDropped)
	}
}

func TestTurnCapForcesScoring(t *testing.T) {
	t.Parallel()

	policy := &scriptedPolicy{}
	s := New(Params{
		LeadID:        "lead-1",
		LeadName:      "Asha",
		Attempt:       1,
		CorrelationID: "corr-1",
		Policy:        policy,
		Lines:         testLines,
		TurnCap:       3,
	})
	ctx := context.Background()
	s.HandleAnswered(ctx)

	var last Instruction
	for i := 0; i < 3; i++ {
		last = s.HandleSpeech(ctx, "hmm")
	}
	if last.Kind != InstructSayHangup {
		t.Fatalf("instruction at turn cap: got kind %v, want say_hangup", last.Kind)
	}
	if last.Text != testLines.Disqualified {
		t.Fatalf("closing line = %q, want disqualified line", last.Text)
	}
	// The capped exchange must not reach the policy again.
	if policy.calls != 2 {
		t.Fatalf("policy calls = %d, want 2", policy.calls)
	}

	s.HandleStatus(ctx, "completed")
	res, _ := s.TakeResult()
	if res.Disposition != contractx.DispositionDisqualified {
		t.Fatalf("disposition = %v, want %v", res.Disposition, contractx.DispositionDisqualified)
	}
}

func TestPolicyFailureClosesWithError(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &scriptedPolicy{err: errors.New("model unreachable")})
	ctx := context.Background()

	s.HandleAnswered(ctx)
	ins := s.HandleSpeech(ctx, "haan")
	if ins.Kind != InstructSayHangup || ins.Text != testLines.Fallback {
		t.Fatalf("speech under failing policy: got %+v, want say_hangup with fallback line", ins)
	}

	s.HandleStatus(ctx, "completed")
	res, _ := s.TakeResult()
	if res.Disposition != contractx.DispositionError {
		t.Fatalf("disposition = %v, want %v", res.Disposition, contractx.DispositionError)
	}
}

func TestPostTerminalEventsAreNoOps(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &scriptedPolicy{})
	ctx := context.Background()
	s.HandleStatus(ctx, "no-answer")

	if ins := s.HandleSpeech(ctx, "hello?"); ins.Kind != InstructNone {
		t.Fatalf("speech after terminal: got kind %v, want none", ins.Kind)
	}
	if ins := s.HandleStatus(ctx, "completed"); ins.Kind != InstructNone {
		t.Fatalf("status after terminal: got kind %v, want none", ins.Kind)
	}

	res, ok := s.TakeResult()
	if !ok || res.Disposition != contractx.DispositionNoAnswer {
		t.Fatalf("result = %+v ok=%v, want no_answer result once", res, ok)
	}
}

func TestTakeResultClaimsOnce(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &scriptedPolicy{})
	ctx := context.Background()

	if _, ok := s.TakeResult(); ok {
		t.Fatal("TakeResult before terminal: got ok")
	}

	s.HandleStatus(ctx, "no-answer")
	if _, ok := s.TakeResult(); !ok {
		t.Fatal("first TakeResult after terminal: got !ok")
	}
	if _, ok := s.TakeResult(); ok {
		t.Fatal("second TakeResult: got ok, want claimed")
	}
}

func TestRecordingURLSurvivesTerminal(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &scriptedPolicy{})
	ctx := context.Background()

	s.HandleStatus(ctx, "no-answer")
	s.HandleRecording("https://api.example.com/recordings/rec-1")

	res, _ := s.TakeResult()
	if res.RecordingURL != "https://api.example.com/recordings/rec-1" {
		t.Fatalf("recording url = %q", res.RecordingURL)
	}
}

// blockingPolicy parks Decide until released, standing in for a slow
// model call.
type blockingPolicy struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPolicy) Decide(_ context.Context, _ contractx.PolicyRequest) (contractx.PolicyDecision, error) {
	close(p.entered)
	<-p.release
	return contractx.PolicyDecision{NextQuestion: "aur kuch bataiye?"}, nil
}

func (p *blockingPolicy) Summarize(_ context.Context, _ []contractx.Turn, _ contractx.Slots, _ contractx.Disposition) string {
	return "summary"
}

func TestExpireIfIdleSkipsBusySession(t *testing.T) {
	t.Parallel()

	policy := &blockingPolicy{entered: make(chan struct{}), release: make(chan struct{})}
	s := newTestSession(t, policy)
	ctx := context.Background()
	s.HandleAnswered(ctx)

	done := make(chan Instruction, 1)
	go func() { done <- s.HandleSpeech(ctx, "haan boliye") }()
	<-policy.entered

	// The sweep must return immediately and leave the busy session alone,
	// however far past the window the clock reads.
	if s.ExpireIfIdle(time.Now().Add(time.Hour), time.Minute) {
		t.Fatal("expired a session mid-callback")
	}

	close(policy.release)
	if ins := <-done; ins.Kind != InstructAsk {
		t.Fatalf("speech after release: got kind %v, want ask", ins.Kind)
	}
	if s.Terminal() {
		t.Fatal("session terminal after skipped sweep")
	}
}

func TestExpireIfIdle(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC)
	now := base
	s := New(Params{
		LeadID:        "lead-1",
		CorrelationID: "corr-1",
		Policy:        &scriptedPolicy{},
		Lines:         testLines,
		Now:           func() time.Time { return now },
	})
	s.HandleAnswered(context.Background())

	if s.ExpireIfIdle(base.Add(20*time.Second), 45*time.Second) {
		t.Fatal("expired inside the window")
	}
	if !s.ExpireIfIdle(base.Add(time.Minute), 45*time.Second) {
		t.Fatal("did not expire past the window")
	}

	res, ok := s.TakeResult()
	if !ok || res.Disposition != contractx.DispositionDropped {
		t.Fatalf("result = %+v ok=%v, want dropped", res, ok)
	}
}
