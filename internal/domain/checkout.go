package domain

// CheckoutRequest is the normalized shape every gateway adapter accepts,
// regardless of provider-specific field names. Ephemeral, never persisted.
type CheckoutRequest struct {
	UserID              string
	VideoID             string
	Title               string
	AmountCents         int64
	Currency            string
	RentalDurationHours int
	ReturnURL           string
	CancelURL           string
	UserEmail           string
	UserName            string
	UserPhone           string
}

// CheckoutResult is the normalized shape every adapter produces.
type CheckoutResult struct {
	URL       string `json:"url"`
	OrderID   string `json:"orderId"`
	SessionID string `json:"sessionId,omitempty"`
}

// VerifyResult is the outcome of a synchronous order-status check against a
// provider.
type VerifyResult struct {
	Paid                bool
	Status              string
	AmountCents         int64
	Currency            string
	UserID              string
	VideoID             string
	RentalDurationHours int
	RawPayload          string
}
