package domain

// Video holds the pricing and gating facts the rental flow needs. Full
// catalog/metadata storage lives elsewhere; this row is the interface
// boundary. Missing rows fall back to DefaultVideo pricing.
type Video struct {
	VideoID             string `json:"id" dynamodbav:"video_id"`
	Title               string `json:"title" dynamodbav:"title"`
	PriceCents          int64  `json:"price_cents" dynamodbav:"price_cents"`
	Currency            string `json:"currency" dynamodbav:"currency"`
	RentalDurationHours int    `json:"rental_duration_hours" dynamodbav:"rental_duration_hours"`
	FreeDurationSeconds int    `json:"free_duration_seconds" dynamodbav:"free_duration_seconds"`
}

// DefaultVideo returns demo pricing for a video with no catalog row.
func DefaultVideo(videoID string) *Video {
	return &Video{
		VideoID:             videoID,
		Title:               videoID,
		PriceCents:          2500,
		Currency:            "USD",
		RentalDurationHours: 48,
		FreeDurationSeconds: 30,
	}
}
