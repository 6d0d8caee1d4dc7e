package domain

import "time"

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// PaymentRecord is the durable record of one gateway transaction, keyed
// (Gateway, GatewayRef). Redelivery of the same reference updates status and
// payload in place. PaymentID is assigned on first write and never changes;
// it is what entitlements point at as their source.
type PaymentRecord struct {
	PaymentID     string    `json:"id" dynamodbav:"payment_id"`
	Gateway       string    `json:"gateway" dynamodbav:"gateway"`
	GatewayRef    string    `json:"gateway_ref" dynamodbav:"gateway_ref"`
	GatewaySubRef string    `json:"gateway_subref,omitempty" dynamodbav:"gateway_subref,omitempty"`
	AmountCents   int64     `json:"amount_cents" dynamodbav:"amount_cents"`
	Currency      string    `json:"currency" dynamodbav:"currency"`
	Status        string    `json:"status" dynamodbav:"status"`
	RawPayload    string    `json:"-" dynamodbav:"raw_payload"`
	UserID        string    `json:"user_id" dynamodbav:"user_id"`
	VideoID       string    `json:"video_id" dynamodbav:"video_id"`
	CreatedAt     time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt     time.Time `json:"updated" dynamodbav:"updated_at"`
}
