package domain

import "time"

// Entitlement statuses.
const (
	EntitlementActive  = "active"
	EntitlementExpired = "expired"
)

// Entitlement is a time-bounded grant of access to one video for one user.
// EntitlementID is a ULID, so rows for a (user, video) pair sort by creation
// time; reads always take the most recent row as authoritative, which is what
// makes a duplicate issuance from a webhook/poll race harmless.
type Entitlement struct {
	EntitlementID   string    `json:"id" dynamodbav:"entitlement_id"`
	UserVideo       string    `json:"-" dynamodbav:"user_video"`
	UserID          string    `json:"user_id" dynamodbav:"user_id"`
	VideoID         string    `json:"video_id" dynamodbav:"video_id"`
	Type            string    `json:"type" dynamodbav:"type"`
	StartsAt        time.Time `json:"starts_at" dynamodbav:"starts_at"`
	ExpiresAt       time.Time `json:"expires_at" dynamodbav:"expires_at"`
	Status          string    `json:"status" dynamodbav:"status"`
	SourcePaymentID string    `json:"source_payment_id" dynamodbav:"source_payment_id"`
}

// Entitled reports whether the row grants access at the given instant.
func (e *Entitlement) Entitled(now time.Time) bool {
	return e.Status == EntitlementActive && e.ExpiresAt.After(now)
}

// UserVideoKey builds the composite partition key for the entitlements table.
func UserVideoKey(userID, videoID string) string {
	return userID + "#" + videoID
}
