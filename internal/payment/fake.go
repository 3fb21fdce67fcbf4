package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fake is an in-memory Processor for tests and local development without
// processor credentials. Webhooks use the processor's real signature scheme.
type Fake struct {
	mu            sync.Mutex
	intents       map[string]*Intent
	webhookSecret string

	// Err, when set, is returned by every call to simulate an outage.
	Err error
}

func NewFake(webhookSecret string) *Fake {
	return &Fake{intents: make(map[string]*Intent), webhookSecret: webhookSecret}
}

func (f *Fake) CreateIntent(_ context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	id := "pi_" + uuid.NewString()
	intent := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		Status:       "requires_payment_method",
		Amount:       amountMinor,
		Currency:     currency,
		Metadata:     metadata,
	}
	f.intents[id] = intent

	copied := *intent
	return &copied, nil
}

func (f *Fake) RetrieveIntent(_ context.Context, id string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	intent, ok := f.intents[id]
	if !ok {
		return nil, errors.New("no such payment intent: " + id)
	}

	copied := *intent
	return &copied, nil
}

func (f *Fake) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	return verifyWebhook(payload, signature, f.webhookSecret)
}

// SetStatus moves an intent to status, as a customer completing payment would.
func (f *Fake) SetStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if intent, ok := f.intents[id]; ok {
		intent.Status = status
	}
}

// Intents returns a snapshot of every intent created so far.
func (f *Fake) Intents() []Intent {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Intent, 0, len(f.intents))
	for _, intent := range f.intents {
		out = append(out, *intent)
	}
	return out
}

// SignPayload builds a Stripe-Signature header for payload.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// EventPayload renders a minimal payment intent event body.
func EventPayload(eventType, intentID, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_%s","object":"event","api_version":"2023-10-16","type":%q,"data":{"object":{"id":%q,"object":"payment_intent","status":%q}}}`,
		uuid.NewString()[:8], eventType, intentID, status))
}
