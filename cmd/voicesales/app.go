package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/vaani-ai/voice-sales-agent/agent/callrecord"
	"github.com/vaani-ai/voice-sales-agent/agent/dialogue"
	"github.com/vaani-ai/voice-sales-agent/agent/gateway"
	"github.com/vaani-ai/voice-sales-agent/agent/orchestrator"
	"github.com/vaani-ai/voice-sales-agent/agent/scheduler"
	configx "github.com/vaani-ai/voice-sales-agent/pkg/config"
	"github.com/vaani-ai/voice-sales-agent/pkg/facebook"
	openaix "github.com/vaani-ai/voice-sales-agent/pkg/openai"
	"github.com/vaani-ai/voice-sales-agent/pkg/twilio"
	"github.com/vaani-ai/voice-sales-agent/pkg/zoho"
	"github.com/vaani-ai/voice-sales-agent/webhook"
)

// app holds the fully wired process. Build once per command invocation.
type app struct {
	crm       *zoho.Client
	phone     *twilio.Client
	fb        *facebook.Client  // nil when FACEBOOK_ACCESS_TOKEN is unset
	records   *callrecord.Store // nil when RECORDS_DSN is unset
	openaiCfg *openaix.Config
	engine    *orchestrator.Engine
	server    *webhook.Server
}

func buildApp(ctx context.Context) (*app, error) {
	zohoCfg, err := configx.New[zoho.Config]("ZOHO")
	if err != nil {
		return nil, fmt.Errorf("load zoho config: %w", err)
	}
	crm, err := zoho.NewClient(*zohoCfg)
	if err != nil {
		return nil, fmt.Errorf("create zoho client: %w", err)
	}

	twilioCfg, err := configx.New[twilio.Config]("TWILIO")
	if err != nil {
		return nil, fmt.Errorf("load twilio config: %w", err)
	}
	phone, err := twilio.NewClient(*twilioCfg)
	if err != nil {
		return nil, fmt.Errorf("create twilio client: %w", err)
	}

	openaiCfg, err := configx.New[openaix.Config]("OPENAI")
	if err != nil {
		return nil, fmt.Errorf("load openai config: %w", err)
	}
	chatModel, err := openaiCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	policy, err := dialogue.New(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("build dialogue policy: %w", err)
	}

	var records *callrecord.Store
	if os.Getenv("RECORDS_DSN") != "" {
		recordsCfg, err := configx.New[callrecord.Config]("RECORDS")
		if err != nil {
			return nil, fmt.Errorf("load records config: %w", err)
		}
		records = callrecord.NewStore(*recordsCfg)
	} else {
		log.Info().Msg("RECORDS_DSN unset, call record persistence disabled")
	}

	crmCfg, err := configx.New[gateway.Config]("CRM")
	if err != nil {
		return nil, fmt.Errorf("load crm gateway config: %w", err)
	}
	store := gateway.NewZohoLeadStore(crm, records, *crmCfg)
	telephony := gateway.NewTwilioTelephony(phone)

	schedCfg, err := configx.New[scheduler.Config]("SCHEDULER")
	if err != nil {
		return nil, fmt.Errorf("load scheduler config: %w", err)
	}
	sched, err := scheduler.New(*schedCfg)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	engineCfg, err := configx.New[orchestrator.Config]("ENGINE")
	if err != nil {
		return nil, fmt.Errorf("load engine config: %w", err)
	}
	engine := orchestrator.New(*engineCfg, store, telephony, policy, sched)

	webhookCfg, err := configx.New[webhook.Config]("WEBHOOK")
	if err != nil {
		return nil, fmt.Errorf("load webhook config: %w", err)
	}
	server := webhook.NewServer(*webhookCfg, engine)

	var fb *facebook.Client
	if os.Getenv("FACEBOOK_ACCESS_TOKEN") != "" {
		fbCfg, err := configx.New[facebook.Config]("FACEBOOK")
		if err != nil {
			return nil, fmt.Errorf("load facebook config: %w", err)
		}
		fb, err = facebook.NewClient(*fbCfg)
		if err != nil {
			return nil, fmt.Errorf("create facebook client: %w", err)
		}
		server.AttachLeadSource(gateway.NewFacebookLeadSource(fb, crm, *crmCfg))
	} else {
		log.Info().Msg("FACEBOOK_ACCESS_TOKEN unset, lead ads ingestion disabled")
	}

	return &app{
		crm:       crm,
		phone:     phone,
		fb:        fb,
		records:   records,
		openaiCfg: openaiCfg,
		engine:    engine,
		server:    server,
	}, nil
}

// initRecords creates the call_records table when persistence is enabled.
func (a *app) initRecords(ctx context.Context) error {
	if a.records == nil {
		return nil
	}
	return a.records.Init(ctx)
}

func (a *app) close() {
	if a.records != nil {
		if err := a.records.Close(); err != nil {
			log.Warn().Err(err).Msg("close records store")
		}
	}
}
