// Package webhook receives the telephony provider's callbacks and turns
// session instructions into TwiML replies. Callbacks are treated as
// at-least-once: duplicates and events for finished calls are acknowledged
// with 200 so the provider stops retrying.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
	"github.com/vaani-ai/voice-sales-agent/agent/orchestrator"
	"github.com/vaani-ai/voice-sales-agent/agent/session"
	"github.com/vaani-ai/voice-sales-agent/pkg/telemetry"
	"github.com/vaani-ai/voice-sales-agent/pkg/twilio"
)

// LeadSource ingests leads pushed by an ad platform webhook. Verify
// answers the platform's subscription handshake; Ingest turns one pushed
// lead id into an engine-ready lead.
type LeadSource interface {
	Verify(token string) bool
	Ingest(ctx context.Context, leadgenID string) (contractx.Lead, error)
}

type Config struct {
	ListenAddr           string        `envconfig:"LISTEN_ADDR" split_words:"true" default:":8080"`
	GatherTimeoutSeconds int           `envconfig:"GATHER_TIMEOUT_SECONDS" split_words:"true" default:"6"`
	ShutdownTimeout      time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"10s"`
}

type Server struct {
	cfg     Config
	engine  *orchestrator.Engine
	leadSrc LeadSource // nil when no ad platform is configured
	router  chi.Router
}

func NewServer(cfg Config, engine *orchestrator.Engine) *Server {
	if cfg.GatherTimeoutSeconds <= 0 {
		cfg.GatherTimeoutSeconds = 6
	}
	s := &Server{cfg: cfg, engine: engine}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/twilio/voice/{correlationID}", s.handleVoice)
	r.Post("/twilio/gather", s.handleGather)
	r.Post("/twilio/status", s.handleStatus)
	r.Post("/twilio/recording", s.handleRecording)

	r.Get("/facebook/webhook", s.handleFacebookVerify)
	r.Post("/facebook/webhook", s.handleFacebookLeads)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", telemetry.Handler())
	r.Get("/api/status", s.handleAPIStatus)
	r.Post("/api/stop", s.handleAPIStop)

	s.router = r
	return s
}

// AttachLeadSource enables the ad platform ingestion routes. Call before
// Start; without a source those routes answer 404.
func (s *Server) AttachLeadSource(src LeadSource) {
	s.leadSrc = src
}

// Router exposes the handler for tests and custom servers.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains with the configured
// shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("webhook server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	err := <-errCh
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

/* ---------------------------- provider routes ---------------------------- */

// handleVoice answers the call-connected webhook with the opening line.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	telemetry.WebhookEvents.WithLabelValues("voice").Inc()
	correlationID := chi.URLParam(r, "correlationID")

	sess, ok := s.engine.Table().Lookup(correlationID)
	if !ok {
		s.stale(w, correlationID)
		return
	}

	ins := sess.HandleAnswered(r.Context())
	s.reply(w, sess, ins)
}

// handleGather receives the lead's transcribed speech and answers with the
// next question or the closing line.
func (s *Server) handleGather(w http.ResponseWriter, r *http.Request) {
	telemetry.WebhookEvents.WithLabelValues("gather").Inc()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	correlationID := r.FormValue("cid")

	sess, ok := s.engine.Table().Lookup(correlationID)
	if !ok {
		s.stale(w, correlationID)
		return
	}

	utterance := r.FormValue("SpeechResult")
	if utterance == "" {
		utterance = r.FormValue("Digits")
	}
	ins := sess.HandleSpeech(r.Context(), utterance)
	s.reply(w, sess, ins)
}

// handleStatus ingests call lifecycle events and finalizes the session on
// its terminal transition.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	telemetry.WebhookEvents.WithLabelValues("status").Inc()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	correlationID := r.FormValue("cid")

	sess, ok := s.engine.Table().Lookup(correlationID)
	if !ok {
		telemetry.StaleCallbacks.Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	sess.HandleStatus(r.Context(), r.FormValue("CallStatus"))
	if sess.Terminal() {
		s.engine.Finalize(r.Context(), sess)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	telemetry.WebhookEvents.WithLabelValues("recording").Inc()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	correlationID := r.FormValue("cid")

	sess, ok := s.engine.Table().Lookup(correlationID)
	if !ok {
		// Recording callbacks routinely outlive the session; just ack.
		telemetry.StaleCallbacks.Inc()
		w.WriteHeader(http.StatusOK)
		return
	}
	sess.HandleRecording(r.FormValue("RecordingUrl"))
	w.WriteHeader(http.StatusOK)
}

/* --------------------------- lead ads routes ----------------------------- */

// handleFacebookVerify answers the subscription handshake: echo the
// challenge when the verify token matches, 403 otherwise.
func (s *Server) handleFacebookVerify(w http.ResponseWriter, r *http.Request) {
	if s.leadSrc == nil {
		http.NotFound(w, r)
		return
	}
	if !s.leadSrc.Verify(r.URL.Query().Get("hub.verify_token")) {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(r.URL.Query().Get("hub.challenge")))
}

type leadgenNotification struct {
	Entry []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				LeadgenID string `json:"leadgen_id"`
				PageID    string `json:"page_id"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// handleFacebookLeads ingests pushed leadgen submissions and queues each
// new lead for an immediate call.
func (s *Server) handleFacebookLeads(w http.ResponseWriter, r *http.Request) {
	if s.leadSrc == nil {
		http.NotFound(w, r)
		return
	}
	telemetry.WebhookEvents.WithLabelValues("leadgen").Inc()

	var note leadgenNotification
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	failed := 0
	for _, entry := range note.Entry {
		for _, change := range entry.Changes {
			if change.Field != "leadgen" || change.Value.LeadgenID == "" {
				continue
			}
			lead, err := s.leadSrc.Ingest(r.Context(), change.Value.LeadgenID)
			if err != nil {
				failed++
				log.Error().Err(err).Str("leadgen_id", change.Value.LeadgenID).Msg("lead ads ingestion failed")
				continue
			}
			s.engine.Admit(lead)
			log.Info().Str("lead_id", lead.ID).Msg("lead ads submission queued for call")
		}
	}

	if failed > 0 {
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

/* ----------------------------- ops routes ------------------------------- */

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleAPIStop(w http.ResponseWriter, r *http.Request) {
	endLive := r.URL.Query().Get("end_live") == "true"
	s.engine.StopAll(r.Context(), endLive)
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true, "ended_live": endLive})
}

/* -------------------------------- helpers ------------------------------- */

// reply renders one instruction as TwiML. A None instruction keeps the
// line open while the call is live and hangs up otherwise.
func (s *Server) reply(w http.ResponseWriter, sess *session.Session, ins session.Instruction) {
	var twiml twilio.VoiceResponse

	switch ins.Kind {
	case session.InstructAsk:
		twiml.GatherSpeech(s.gatherAction(sess.CorrelationID), ins.Text, s.cfg.GatherTimeoutSeconds)
	case session.InstructSayHangup:
		// Trailing pause so the closing line is not clipped by the hangup.
		twiml.Say(ins.Text, "").Pause(1).Hangup()
	default:
		if sess.Terminal() {
			twiml.Hangup()
		} else {
			twiml.GatherSpeech(s.gatherAction(sess.CorrelationID), "", s.cfg.GatherTimeoutSeconds)
		}
	}

	writeTwiML(w, twiml.Render())
}

// stale acknowledges a callback for an unknown session with a polite
// hangup so the provider does not retry.
func (s *Server) stale(w http.ResponseWriter, correlationID string) {
	telemetry.StaleCallbacks.Inc()
	log.Debug().Str("correlation_id", correlationID).Msg("callback for unknown session")

	var twiml twilio.VoiceResponse
	twiml.Hangup()
	writeTwiML(w, twiml.Render())
}

func (s *Server) gatherAction(correlationID string) string {
	return "/twilio/gather?cid=" + correlationID
}

func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
