package paymentgateway

// RefundParams is the request shape for the gateway's refund creation call.
// The idempotency key is forwarded so a timed-out call retried with the same
// key cannot produce a second refund on the processor side.
type RefundParams struct {
	PaymentIntentID string `json:"payment_intent_id"`
	IdempotencyKey  string `json:"-"`
	Reason          string `json:"reason,omitempty"`
}

// RefundResult is the subset of the gateway refund object this core needs.
type RefundResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Account describes a connected account's capability flags.
type Account struct {
	ID             string `json:"id"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

// ConnectReady reports whether the account can both take charges and receive
// payouts, the precondition for refund orchestration.
func (a *Account) ConnectReady() bool {
	return a.ChargesEnabled && a.PayoutsEnabled
}

// WebhookPayload is the signed webhook envelope from the gateway, validated at
// the boundary into a closed set of known event types.
type WebhookPayload struct {
	Type   string        `json:"type"`
	Object WebhookObject `json:"object"`
}

type WebhookObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
	Outcome  string            `json:"outcome,omitempty"`
}
