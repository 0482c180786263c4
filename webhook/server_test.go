package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
	"github.com/vaani-ai/voice-sales-agent/agent/orchestrator"
	"github.com/vaani-ai/voice-sales-agent/agent/scheduler"
)

type stubStore struct {
	leads []contractx.Lead
}

func (s *stubStore) FetchNextLeads(_ context.Context, _ int) ([]contractx.Lead, error) {
	return s.leads, nil
}

func (s *stubStore) UpdateLead(_ context.Context, _ string, _ contractx.LeadUpdate) error {
	return nil
}

func (s *stubStore) AppendCallRecord(_ context.Context, _ string, _ contractx.CallRecord) error {
	return nil
}

type stubTelephony struct{}

func (stubTelephony) PlaceCall(_ context.Context, _, correlationID string) (contractx.CallHandle, error) {
	return contractx.CallHandle{SID: "CA" + correlationID, Status: "queued"}, nil
}

func (stubTelephony) EndCall(_ context.Context, _ string) error { return nil }

type stubPolicy struct{}

func (stubPolicy) Decide(_ context.Context, req contractx.PolicyRequest) (contractx.PolicyDecision, error) {
	patch := map[contractx.SlotName]contractx.SlotValue{}
	if target, open := req.Slots.NextUnfilled(); open {
		patch[target] = contractx.SlotValue{Status: contractx.SlotCaptured, Value: req.Utterance}
	}
	merged := req.Slots.Clone()
	for k, v := range patch {
		merged[k] = v
	}
	if merged.Complete() {
		return contractx.PolicyDecision{Complete: true, SlotsPatch: patch}, nil
	}
	return contractx.PolicyDecision{NextQuestion: "agla sawaal?", SlotsPatch: patch}, nil
}

func (stubPolicy) Summarize(_ context.Context, _ []contractx.Turn, _ contractx.Slots, _ contractx.Disposition) string {
	return "summary"
}

// newLiveCall builds a server with one placed call and returns the server
// and the call's correlation id.
func newLiveCall(t *testing.T) (*Server, *orchestrator.Engine, string) {
	t.Helper()

	sched := scheduler.MustNew(scheduler.Config{
		MaxAttempts:       3,
		RetryDelay:        time.Hour,
		CallingHoursStart: 0,
		CallingHoursEnd:   24,
		Timezone:          "UTC",
	})
	store := &stubStore{leads: []contractx.Lead{{ID: "lead-1", Name: "Asha", Phone: "9876543210"}}}
	engine := orchestrator.New(orchestrator.Config{TurnCap: 8}, store, stubTelephony{}, stubPolicy{}, sched)

	ctx := context.Background()
	if _, err := engine.FetchLeads(ctx); err != nil {
		t.Fatalf("FetchLeads: %v", err)
	}
	cid, err := engine.CallLead(ctx, "lead-1")
	if err != nil {
		t.Fatalf("CallLead: %v", err)
	}

	return NewServer(Config{GatherTimeoutSeconds: 5}, engine), engine, cid
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestVoiceWebhookSpeaksOpeningOnce(t *testing.T) {
	t.Parallel()

	srv, _, cid := newLiveCall(t)

	rec := postForm(t, srv.Router(), "/twilio/voice/"+cid, url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<Gather") || !strings.Contains(body, "Asha") {
		t.Fatalf("first voice reply = %q, want gather with greeting", body)
	}

	// Re-delivered voice webhook keeps listening but does not greet again.
	dup := postForm(t, srv.Router(), "/twilio/voice/"+cid, url.Values{})
	if dupBody := dup.Body.String(); strings.Contains(dupBody, "Asha") {
		t.Fatalf("duplicate voice reply repeated the greeting: %q", dupBody)
	}
}

func TestGatherAdvancesDialogue(t *testing.T) {
	t.Parallel()

	srv, _, cid := newLiveCall(t)
	postForm(t, srv.Router(), "/twilio/voice/"+cid, url.Values{})

	rec := postForm(t, srv.Router(), "/twilio/gather?cid="+cid, url.Values{"SpeechResult": {"paanch lakh"}})
	body := rec.Body.String()
	if !strings.Contains(body, "agla sawaal?") {
		t.Fatalf("gather reply = %q, want next question", body)
	}
}

func TestCompletedStatusFinalizesSession(t *testing.T) {
	t.Parallel()

	srv, engine, cid := newLiveCall(t)
	postForm(t, srv.Router(), "/twilio/voice/"+cid, url.Values{})

	rec := postForm(t, srv.Router(), "/twilio/status?cid="+cid, url.Values{"CallStatus": {"completed"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := engine.Table().Lookup(cid); ok {
		t.Fatal("session still registered after completed status")
	}

	// Replayed status callback for the settled call is acknowledged.
	replay := postForm(t, srv.Router(), "/twilio/status?cid="+cid, url.Values{"CallStatus": {"completed"}})
	if replay.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", replay.Code)
	}
}

func TestUnknownCorrelationIDIsAcked(t *testing.T) {
	t.Parallel()

	srv, _, _ := newLiveCall(t)

	rec := postForm(t, srv.Router(), "/twilio/voice/ghost-cid", url.Values{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<Hangup/>") {
		t.Fatalf("stale reply = %q, want hangup", rec.Body.String())
	}
}

func TestRecordingCallbackStoresURL(t *testing.T) {
	t.Parallel()

	srv, engine, cid := newLiveCall(t)

	rec := postForm(t, srv.Router(), "/twilio/recording?cid="+cid, url.Values{"RecordingUrl": {"https://api.example.com/rec-1"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	ctx := context.Background()
	s, _ := engine.Table().Lookup(cid)
	s.HandleStatus(ctx, "no-answer")
	res, ok := s.TakeResult()
	if !ok || res.RecordingURL != "https://api.example.com/rec-1" {
		t.Fatalf("result = %+v ok=%v, want recording url", res, ok)
	}
}

func TestClosingReplyPausesBeforeHangup(t *testing.T) {
	t.Parallel()

	srv, _, cid := newLiveCall(t)
	postForm(t, srv.Router(), "/twilio/voice/"+cid, url.Values{})

	// The stub policy fills one slot per utterance; the fourth completes
	// the dialogue and closes the call.
	var body string
	for _, utterance := range []string{"5 lakh", "haan", "CRM", "agle mahine"} {
		rec := postForm(t, srv.Router(), "/twilio/gather?cid="+cid, url.Values{"SpeechResult": {utterance}})
		body = rec.Body.String()
	}
	for _, verb := range []string{"<Say", `<Pause length="1"/>`, "<Hangup/>"} {
		if !strings.Contains(body, verb) {
			t.Fatalf("closing reply = %q, want %s", body, verb)
		}
	}
}

// stubLeadSource accepts one known leadgen id.
type stubLeadSource struct {
	token string
	lead  contractx.Lead
}

func (s *stubLeadSource) Verify(token string) bool { return token == s.token }

func (s *stubLeadSource) Ingest(_ context.Context, leadgenID string) (contractx.Lead, error) {
	if leadgenID != "lg-1" {
		return contractx.Lead{}, contractx.ErrNotFound
	}
	return s.lead, nil
}

func TestFacebookWebhookVerification(t *testing.T) {
	t.Parallel()

	srv, _, _ := newLiveCall(t)
	srv.AttachLeadSource(&stubLeadSource{token: "sesame"})

	ok := httptest.NewRecorder()
	srv.Router().ServeHTTP(ok, httptest.NewRequest(http.MethodGet,
		"/facebook/webhook?hub.verify_token=sesame&hub.challenge=12345", nil))
	if ok.Code != http.StatusOK || ok.Body.String() != "12345" {
		t.Fatalf("verification = %d %q, want 200 with echoed challenge", ok.Code, ok.Body.String())
	}

	bad := httptest.NewRecorder()
	srv.Router().ServeHTTP(bad, httptest.NewRequest(http.MethodGet,
		"/facebook/webhook?hub.verify_token=wrong&hub.challenge=12345", nil))
	if bad.Code != http.StatusForbidden {
		t.Fatalf("bad token status = %d, want 403", bad.Code)
	}
}

func TestFacebookWebhookQueuesLead(t *testing.T) {
	t.Parallel()

	srv, engine, _ := newLiveCall(t)
	srv.AttachLeadSource(&stubLeadSource{
		token: "sesame",
		lead:  contractx.Lead{ID: "lead-fb", Name: "Ravi Kumar", Phone: "9812345678", Status: contractx.StatusNew},
	})

	payload := `{"entry":[{"changes":[{"field":"leadgen","value":{"leadgen_id":"lg-1","page_id":"page-1"}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/facebook/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if got := engine.Status().Queue.Queued; got != 1 {
		t.Fatalf("queued leads after ingest = %d, want 1", got)
	}
}

func TestFacebookWebhookWithoutSourceIs404(t *testing.T) {
	t.Parallel()

	srv, _, _ := newLiveCall(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/facebook/webhook?hub.verify_token=x", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHealthAndStatusEndpoints(t *testing.T) {
	t.Parallel()

	srv, _, _ := newLiveCall(t)

	health := httptest.NewRecorder()
	srv.Router().ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", health.Code)
	}

	status := httptest.NewRecorder()
	srv.Router().ServeHTTP(status, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if status.Code != http.StatusOK {
		t.Fatalf("api status = %d", status.Code)
	}
	if !strings.Contains(status.Body.String(), "lead-1") {
		t.Fatalf("api status body = %q, want live call for lead-1", status.Body.String())
	}
}
