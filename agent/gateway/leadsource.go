package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
	"github.com/vaani-ai/voice-sales-agent/pkg/facebook"
	"github.com/vaani-ai/voice-sales-agent/pkg/zoho"
)

// FacebookLeadSource ingests Lead Ads submissions: each leadgen id is
// fetched from the Graph API, created as a CRM lead, and handed back to
// the engine for an immediate call.
type FacebookLeadSource struct {
	fb            *facebook.Client
	crm           *zoho.Client
	initialStatus string
}

// NewFacebookLeadSource wires the Graph client to the CRM. New leads are
// created with initialStatus so a lead that misses its immediate call is
// still picked up by the regular fetch.
func NewFacebookLeadSource(fb *facebook.Client, crm *zoho.Client, cfg Config) *FacebookLeadSource {
	initialStatus := cfg.FetchStatus
	if initialStatus == "" {
		initialStatus = "Not Contacted"
	}
	return &FacebookLeadSource{fb: fb, crm: crm, initialStatus: initialStatus}
}

// Verify checks the webhook subscription handshake token.
func (s *FacebookLeadSource) Verify(token string) bool {
	return s.fb.VerifyToken(token)
}

// Ingest fetches one leadgen submission and creates the CRM record.
// Submissions without a phone number cannot be called and are rejected.
func (s *FacebookLeadSource) Ingest(ctx context.Context, leadgenID string) (contractx.Lead, error) {
	fbLead, err := s.fb.FetchLead(ctx, leadgenID)
	if err != nil {
		return contractx.Lead{}, fmt.Errorf("%w: fetch facebook lead: %v", contractx.ErrProvider, err)
	}
	if fbLead.Phone == "" {
		return contractx.Lead{}, fmt.Errorf("%w: facebook lead %s has no phone", contractx.ErrValidation, leadgenID)
	}

	fields := map[string]any{
		"First_Name":  fbLead.FirstName,
		"Last_Name":   fbLead.LastName,
		"Phone":       fbLead.Phone,
		"Lead_Status": s.initialStatus,
		"Lead_Source": "Facebook Lead Ads",
	}
	for key, value := range map[string]string{
		"Email":       fbLead.Email,
		"Company":     fbLead.Company,
		"City":        fbLead.City,
		"State":       fbLead.State,
		"Description": fbLead.Interest,
	} {
		if value != "" {
			fields[key] = value
		}
	}

	crmID, err := s.crm.CreateLead(ctx, fields)
	if err != nil {
		return contractx.Lead{}, fmt.Errorf("%w: create crm lead: %v", contractx.ErrProvider, err)
	}
	log.Info().Str("lead_id", crmID).Str("leadgen_id", leadgenID).Msg("facebook lead synced to crm")

	return contractx.Lead{
		ID:      crmID,
		Name:    fbLead.FullName(),
		Phone:   fbLead.Phone,
		Company: fbLead.Company,
		Status:  contractx.StatusNew,
	}, nil
}
