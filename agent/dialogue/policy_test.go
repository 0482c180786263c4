package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
)

type fakeToolCallingModel struct {
	responses []*schema.Message
	err       error
	idx       int
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

func newTestPolicy(t *testing.T, fake *fakeToolCallingModel) *Policy {
	t.Helper()
	p, err := New(context.Background(), fake)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestDecideCapturesSlotAndAsksNext(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"signal":"captured","value":"paanch lakh"}`},
			{Content: `{"question":"क्या निर्णय आप लेते हैं?"}`},
		},
	}
	p := newTestPolicy(t, fake)

	out, err := p.Decide(context.Background(), contractx.PolicyRequest{
		LeadName:  "Asha",
		Slots:     contractx.NewSlots(),
		Utterance: "paanch lakh tak ka budget hai",
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if out.Complete {
		t.Fatal("Complete = true with three slots open")
	}
	got := out.SlotsPatch[contractx.SlotBudget]
	if got.Status != contractx.SlotCaptured || got.Value != "paanch lakh" {
		t.Fatalf("budget patch = %+v", got)
	}
	if out.NextQuestion != "क्या निर्णय आप लेते हैं?" {
		t.Fatalf("next question = %q", out.NextQuestion)
	}
}

func TestDecideNegativeInfersNo(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"signal":"negative","value":""}`},
			{Content: `{"question":"आगे बताइए?"}`},
		},
	}
	p := newTestPolicy(t, fake)

	out, err := p.Decide(context.Background(), contractx.PolicyRequest{
		Slots:     contractx.NewSlots(),
		Utterance: "hamare paas budget nahi hai",
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if got := out.SlotsPatch[contractx.SlotBudget].Status; got != contractx.SlotInferredNo {
		t.Fatalf("budget status = %v, want inferred_no", got)
	}
}

func TestDecideUnclearRetriesOnceThenInfersNo(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"signal":"unclear","value":""}`},
			{Content: `{"question":"माफ़ कीजिए, बजट के बारे में फिर बताइए?"}`},
			{Content: `{"signal":"unclear","value":""}`},
			{Content: `{"question":"अगला सवाल?"}`},
		},
	}
	p := newTestPolicy(t, fake)
	slots := contractx.NewSlots()

	first, err := p.Decide(context.Background(), contractx.PolicyRequest{Slots: slots, Utterance: "kkhh shhh"})
	if err != nil {
		t.Fatalf("first Decide() error = %v", err)
	}
	patch := first.SlotsPatch[contractx.SlotBudget]
	if patch.Status != contractx.SlotUnknown || !patch.Retried {
		t.Fatalf("first patch = %+v, want unknown retried", patch)
	}
	slots[contractx.SlotBudget] = patch

	second, err := p.Decide(context.Background(), contractx.PolicyRequest{Slots: slots, Utterance: "shhh kkhh"})
	if err != nil {
		t.Fatalf("second Decide() error = %v", err)
	}
	if got := second.SlotsPatch[contractx.SlotBudget].Status; got != contractx.SlotInferredNo {
		t.Fatalf("second patch status = %v, want inferred_no", got)
	}
}

func TestDecideCompletesOnLastSlot(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"signal":"captured","value":"agle mahine"}`},
		},
	}
	p := newTestPolicy(t, fake)

	slots := contractx.NewSlots()
	slots.Capture(contractx.SlotBudget, "5 lakh")
	slots.Capture(contractx.SlotAuthority, "haan")
	slots.Capture(contractx.SlotNeed, "CRM")

	out, err := p.Decide(context.Background(), contractx.PolicyRequest{Slots: slots, Utterance: "agle mahine tak"})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !out.Complete {
		t.Fatal("Complete = false after the last slot resolved")
	}
	if out.NextQuestion != "" {
		t.Fatalf("NextQuestion = %q on completion", out.NextQuestion)
	}
}

func TestDecideAllSlotsAlreadyResolved(t *testing.T) {
	t.Parallel()

	p := newTestPolicy(t, &fakeToolCallingModel{})
	slots := contractx.NewSlots()
	for _, name := range contractx.SlotOrder {
		slots.Capture(name, "x")
	}

	out, err := p.Decide(context.Background(), contractx.PolicyRequest{Slots: slots, Utterance: "haan"})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if !out.Complete {
		t.Fatal("Complete = false with all slots resolved")
	}
}

func TestDecideModelFailureDegradesToBankQuestion(t *testing.T) {
	t.Parallel()

	// Every generate call fails: extraction reads as unclear and the
	// clarification comes from the scripted bank.
	p := newTestPolicy(t, &fakeToolCallingModel{err: errors.New("model down")})

	out, err := p.Decide(context.Background(), contractx.PolicyRequest{Slots: contractx.NewSlots(), Utterance: "haan bolo"})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	patch := out.SlotsPatch[contractx.SlotBudget]
	if patch.Status != contractx.SlotUnknown || !patch.Retried {
		t.Fatalf("patch = %+v, want unknown retried", patch)
	}
	if !strings.Contains(out.NextQuestion, FallbackQuestion(contractx.SlotBudget, false)) {
		t.Fatalf("next question = %q, want bank question", out.NextQuestion)
	}
}

func TestDecideEmptyUtteranceIsUnclear(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"question":"बजट के बारे में बताइए?"}`},
		},
	}
	p := newTestPolicy(t, fake)

	out, err := p.Decide(context.Background(), contractx.PolicyRequest{Slots: contractx.NewSlots(), Utterance: "   "})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	patch := out.SlotsPatch[contractx.SlotBudget]
	if patch.Status != contractx.SlotUnknown || !patch.Retried {
		t.Fatalf("patch = %+v, want unknown retried", patch)
	}
	// The extractor graph must not have consumed a model response.
	if fake.idx != 1 {
		t.Fatalf("model calls = %d, want 1 (question only)", fake.idx)
	}
}

func TestDecideDeadContextErrors(t *testing.T) {
	t.Parallel()

	p := newTestPolicy(t, &fakeToolCallingModel{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Decide(ctx, contractx.PolicyRequest{Slots: contractx.NewSlots(), Utterance: "haan"})
	if !errors.Is(err, contractx.ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}
}

func TestSummarizeUsesModel(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"summary":"Lead has 5 lakh budget, needs CRM next month."}`},
		},
	}
	p := newTestPolicy(t, fake)

	got := p.Summarize(context.Background(), nil, contractx.NewSlots(), contractx.DispositionQualified)
	if got != "Lead has 5 lakh budget, needs CRM next month." {
		t.Fatalf("summary = %q", got)
	}
}

func TestSummarizeFallsBackToSlotDump(t *testing.T) {
	t.Parallel()

	p := newTestPolicy(t, &fakeToolCallingModel{err: errors.New("model down")})
	slots := contractx.NewSlots()
	slots.Capture(contractx.SlotBudget, "5 lakh")
	slots.InferNo(contractx.SlotAuthority)

	got := p.Summarize(context.Background(), nil, slots, contractx.DispositionDisqualified)
	for _, want := range []string{"budget: 5 lakh", "authority: no", "need: not answered", "outcome: disqualified"} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary %q missing %q", got, want)
		}
	}
}
