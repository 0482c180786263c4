// Package dialogue is the conversational brain of a call: it reads the
// lead's latest reply, updates BANT slots, and picks the next question.
// Model failures degrade to scripted Hindi questions and Inferred-No
// resolutions instead of killing the call.
package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
	promptx "github.com/vaani-ai/voice-sales-agent/agent/prompt"
)

const (
	signalCaptured = "captured"
	signalNegative = "negative"
	signalUnclear  = "unclear"
)

// Policy implements contract.DialoguePolicy on three structured LLM graphs:
// an answer extractor, a question generator, and a call summarizer.
type Policy struct {
	extractRunner  compose.Runnable[map[string]any, extractorLLMOutput]
	questionRunner compose.Runnable[map[string]any, questionLLMOutput]
	summaryRunner  compose.Runnable[map[string]any, summaryLLMOutput]
}

var _ contractx.DialoguePolicy = (*Policy)(nil)

func New(ctx context.Context, chatModel einomodel.BaseChatModel) (*Policy, error) {
	prompts := promptx.LoadPromptSet()

	extractRunner, err := compileStructuredLLMGraph[extractorLLMOutput](ctx, chatModel, prompts.Extractor, "dialogue.extractor_graph")
	if err != nil {
		return nil, fmt.Errorf("compile extractor graph: %w", err)
	}
	questionRunner, err := compileStructuredLLMGraph[questionLLMOutput](ctx, chatModel, prompts.Question, "dialogue.question_graph")
	if err != nil {
		return nil, fmt.Errorf("compile question graph: %w", err)
	}
	summaryRunner, err := compileStructuredLLMGraph[summaryLLMOutput](ctx, chatModel, prompts.Summary, "dialogue.summary_graph")
	if err != nil {
		return nil, fmt.Errorf("compile summary graph: %w", err)
	}

	return &Policy{
		extractRunner:  extractRunner,
		questionRunner: questionRunner,
		summaryRunner:  summaryRunner,
	}, nil
}

// Decide interprets the utterance against the first unresolved slot, then
// chooses the next question. An unparsable reply earns one clarification
// re-ask; the second resolves the slot to Inferred-No.
func (p *Policy) Decide(ctx context.Context, req contractx.PolicyRequest) (contractx.PolicyDecision, error) {
	if err := ctx.Err(); err != nil {
		return contractx.PolicyDecision{}, fmt.Errorf("%w: %v", contractx.ErrGeneration, err)
	}

	target, open := req.Slots.NextUnfilled()
	if !open {
		return contractx.PolicyDecision{Complete: true}, nil
	}

	patch := make(map[contractx.SlotName]contractx.SlotValue, 1)
	signal, value := p.extract(ctx, target, req)

	switch signal {
	case signalCaptured:
		patch[target] = contractx.SlotValue{Status: contractx.SlotCaptured, Value: value}
	case signalNegative:
		patch[target] = contractx.SlotValue{Status: contractx.SlotInferredNo}
	default:
		if req.Slots.Get(target).Retried {
			patch[target] = contractx.SlotValue{Status: contractx.SlotInferredNo}
		} else {
			patch[target] = contractx.SlotValue{Status: contractx.SlotUnknown, Retried: true}
			return contractx.PolicyDecision{
				NextQuestion: p.question(ctx, req, target, true),
				SlotsPatch:   patch,
			}, nil
		}
	}

	merged := req.Slots.Clone()
	for name, v := range patch {
		merged[name] = v
	}
	next, open := merged.NextUnfilled()
	if !open {
		return contractx.PolicyDecision{Complete: true, SlotsPatch: patch}, nil
	}

	return contractx.PolicyDecision{
		NextQuestion: p.question(ctx, req, next, false),
		SlotsPatch:   patch,
	}, nil
}

// Summarize produces the CRM note. Falls back to a mechanical slot dump
// when the model is unavailable.
func (p *Policy) Summarize(ctx context.Context, turns []contractx.Turn, slots contractx.Slots, disposition contractx.Disposition) string {
	payload := map[string]any{
		"transcript":  renderTranscript(turns),
		"slots":       slots,
		"disposition": disposition,
	}
	input, err := json.Marshal(payload)
	if err == nil {
		out, invokeErr := p.summaryRunner.Invoke(ctx, map[string]any{"input": string(input)})
		if invokeErr == nil && strings.TrimSpace(out.Summary) != "" {
			return strings.TrimSpace(out.Summary)
		}
		if invokeErr != nil {
			log.Warn().Err(invokeErr).Msg("summary generation failed, using slot dump")
		}
	}
	return mechanicalSummary(slots, disposition)
}

// extract classifies the utterance for one slot. Any model failure reads
// as unclear; the retry bookkeeping upstream takes it from there.
func (p *Policy) extract(ctx context.Context, target contractx.SlotName, req contractx.PolicyRequest) (string, string) {
	if strings.TrimSpace(req.Utterance) == "" {
		return signalUnclear, ""
	}

	payload := map[string]any{
		"slot":       target,
		"utterance":  req.Utterance,
		"lead_name":  req.LeadName,
		"transcript": renderTranscript(req.Turns),
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return signalUnclear, ""
	}

	out, err := p.extractRunner.Invoke(ctx, map[string]any{"input": string(input)})
	if err != nil {
		log.Warn().Err(err).Str("slot", string(target)).Msg("extractor failed, treating reply as unclear")
		return signalUnclear, ""
	}

	switch out.Signal {
	case signalCaptured:
		if strings.TrimSpace(out.Value) == "" {
			return signalUnclear, ""
		}
		return signalCaptured, strings.TrimSpace(out.Value)
	case signalNegative:
		return signalNegative, ""
	default:
		return signalUnclear, ""
	}
}

// question asks the generator for the next line, with the scripted bank as
// the fallback.
func (p *Policy) question(ctx context.Context, req contractx.PolicyRequest, slot contractx.SlotName, clarify bool) string {
	payload := map[string]any{
		"lead_name":  req.LeadName,
		"slot":       slot,
		"clarify":    clarify,
		"transcript": renderTranscript(req.Turns),
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return FallbackQuestion(slot, clarify)
	}

	out, err := p.questionRunner.Invoke(ctx, map[string]any{"input": string(input)})
	if err != nil || strings.TrimSpace(out.Question) == "" {
		if err != nil {
			log.Warn().Err(err).Str("slot", string(slot)).Msg("question generation failed, using bank")
		}
		return FallbackQuestion(slot, clarify)
	}
	return strings.TrimSpace(out.Question)
}

func renderTranscript(turns []contractx.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(string(t.Speaker))
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func mechanicalSummary(slots contractx.Slots, disposition contractx.Disposition) string {
	parts := make([]string, 0, len(contractx.SlotOrder)+1)
	for _, name := range contractx.SlotOrder {
		v := slots.Get(name)
		switch v.Status {
		case contractx.SlotCaptured:
			parts = append(parts, fmt.Sprintf("%s: %s", name, v.Value))
		case contractx.SlotInferredNo:
			parts = append(parts, fmt.Sprintf("%s: no", name))
		default:
			parts = append(parts, fmt.Sprintf("%s: not answered", name))
		}
	}
	parts = append(parts, fmt.Sprintf("outcome: %s", disposition))
	return strings.Join(parts, "; ")
}
