package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyWebhook(t *testing.T) {
	f := NewFake("whsec_test")
	payload := EventPayload(EventIntentSucceeded, "pi_123", StatusSucceeded)

	evt, err := f.VerifyWebhook(payload, SignPayload(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, EventIntentSucceeded, evt.Type)
	assert.Equal(t, "pi_123", evt.IntentID)
	assert.Equal(t, StatusSucceeded, evt.Status)
}

func TestVerifyWebhookRejects(t *testing.T) {
	f := NewFake("whsec_test")
	payload := EventPayload(EventIntentSucceeded, "pi_123", StatusSucceeded)

	tests := []struct {
		name      string
		payload   []byte
		signature string
	}{
		{"wrong secret", payload, SignPayload(payload, "whsec_other", time.Now())},
		{"tampered payload", []byte(`{"id":"evt_x","type":"payment_intent.succeeded"}`), SignPayload(payload, "whsec_test", time.Now())},
		{"stale timestamp", payload, SignPayload(payload, "whsec_test", time.Now().Add(-time.Hour))},
		{"missing header", payload, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.VerifyWebhook(tt.payload, tt.signature)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestFakeIntentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := NewFake("whsec_test")

	intent, err := f.CreateIntent(ctx, 11798, "usd", map[string]string{"orderNumber": "ORD-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, intent.ClientSecret)
	assert.Equal(t, int64(11798), intent.Amount)

	got, err := f.RetrieveIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.NotEqual(t, StatusSucceeded, got.Status)

	f.SetStatus(intent.ID, StatusSucceeded)
	got, err = f.RetrieveIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)

	f.Err = errors.New("processor down")
	_, err = f.RetrieveIntent(ctx, intent.ID)
	assert.Error(t, err)
}
