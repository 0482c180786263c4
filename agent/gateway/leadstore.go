// Package gateway adapts the external service clients to the engine's
// interfaces: Zoho CRM becomes the LeadStore and Twilio the Telephony
// boundary, with provider failures folded into the engine's sentinel
// errors.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/vaani-ai/voice-sales-agent/agent/callrecord"
	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
	"github.com/vaani-ai/voice-sales-agent/pkg/zoho"
)

type Config struct {
	// FetchStatus is the CRM Lead_Status pulled into the queue.
	FetchStatus string `envconfig:"FETCH_STATUS" split_words:"true" default:"Not Contacted"`
}

// statusToCRM maps engine statuses onto Zoho's stock Lead_Status values.
var statusToCRM = map[contractx.LeadStatus]string{
	contractx.StatusScheduled:    "Attempted to Contact",
	contractx.StatusInCall:       "Contacted",
	contractx.StatusQualified:    "Qualified",
	contractx.StatusDisqualified: "Not Qualified",
	contractx.StatusExhausted:    "Contact in Future",
}

// ZohoLeadStore implements contract.LeadStore on the Zoho CRM client, with
// an optional Postgres store for full call records.
type ZohoLeadStore struct {
	crm         *zoho.Client
	records     *callrecord.Store
	fetchStatus string
}

var _ contractx.LeadStore = (*ZohoLeadStore)(nil)

// NewZohoLeadStore wires the CRM client; records may be nil when call
// record persistence is disabled.
func NewZohoLeadStore(crm *zoho.Client, records *callrecord.Store, cfg Config) *ZohoLeadStore {
	fetchStatus := cfg.FetchStatus
	if fetchStatus == "" {
		fetchStatus = "Not Contacted"
	}
	return &ZohoLeadStore{crm: crm, records: records, fetchStatus: fetchStatus}
}

func (s *ZohoLeadStore) FetchNextLeads(ctx context.Context, limit int) ([]contractx.Lead, error) {
	recs, err := s.crm.SearchLeads(ctx, s.fetchStatus, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: search leads: %v", contractx.ErrProvider, err)
	}

	leads := make([]contractx.Lead, 0, len(recs))
	for _, rec := range recs {
		if rec.Phone == "" {
			continue
		}
		leads = append(leads, LeadFromRecord(rec))
	}
	return leads, nil
}

// LeadFromRecord converts a raw CRM record into the engine's lead shape.
func LeadFromRecord(rec zoho.Record) contractx.Lead {
	return contractx.Lead{
		ID:      rec.ID,
		Name:    rec.FullName(),
		Phone:   rec.Phone,
		Company: rec.Company,
		Status:  contractx.StatusNew,
	}
}

func (s *ZohoLeadStore) UpdateLead(ctx context.Context, leadID string, update contractx.LeadUpdate) error {
	if update.Status != nil {
		crmStatus, ok := statusToCRM[*update.Status]
		if !ok {
			return fmt.Errorf("%w: no CRM mapping for status %q", contractx.ErrValidation, *update.Status)
		}
		if err := s.crm.UpdateLead(ctx, leadID, map[string]any{"Lead_Status": crmStatus}); err != nil {
			return s.wrap("update lead status", leadID, err)
		}
	}
	if update.Description != "" {
		if err := s.crm.AppendDescription(ctx, leadID, update.Description); err != nil {
			return s.wrap("append lead note", leadID, err)
		}
	}
	return nil
}

func (s *ZohoLeadStore) AppendCallRecord(ctx context.Context, leadID string, rec contractx.CallRecord) error {
	if s.records == nil {
		return nil
	}
	rec.LeadID = leadID
	if err := s.records.Insert(ctx, rec); err != nil {
		return fmt.Errorf("%w: insert call record: %v", contractx.ErrProvider, err)
	}
	return nil
}

func (s *ZohoLeadStore) wrap(op, leadID string, err error) error {
	if errors.Is(err, zoho.ErrLeadNotFound) {
		return fmt.Errorf("%w: %s: lead=%s", contractx.ErrNotFound, op, leadID)
	}
	return fmt.Errorf("%w: %s: %v", contractx.ErrProvider, op, err)
}
