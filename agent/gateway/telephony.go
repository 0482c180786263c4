package gateway

import (
	"context"
	"fmt"
	"sync"

	contractx "github.com/vaani-ai/voice-sales-agent/agent/contract"
	"github.com/vaani-ai/voice-sales-agent/pkg/twilio"
)

// TwilioTelephony implements contract.Telephony on the Twilio client. It
// remembers the provider call SID per correlation id so EndCall can address
// the live call resource.
type TwilioTelephony struct {
	client *twilio.Client

	mu   sync.Mutex
	sids map[string]string // correlation id -> call SID
}

var _ contractx.Telephony = (*TwilioTelephony)(nil)

func NewTwilioTelephony(client *twilio.Client) *TwilioTelephony {
	return &TwilioTelephony{client: client, sids: make(map[string]string)}
}

func (t *TwilioTelephony) PlaceCall(ctx context.Context, phone, correlationID string) (contractx.CallHandle, error) {
	call, err := t.client.PlaceCall(ctx, phone, correlationID)
	if err != nil {
		return contractx.CallHandle{}, fmt.Errorf("%w: place call: %v", contractx.ErrProvider, err)
	}

	t.mu.Lock()
	t.sids[correlationID] = call.SID
	t.mu.Unlock()

	return contractx.CallHandle{SID: call.SID, Status: call.Status}, nil
}

func (t *TwilioTelephony) EndCall(ctx context.Context, correlationID string) error {
	t.mu.Lock()
	sid, ok := t.sids[correlationID]
	delete(t.sids, correlationID)
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no call sid for correlation id %s", contractx.ErrNotFound, correlationID)
	}
	if err := t.client.EndCall(ctx, sid); err != nil {
		return fmt.Errorf("%w: end call: %v", contractx.ErrProvider, err)
	}
	return nil
}
