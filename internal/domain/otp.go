package domain

import "time"

// OtpChallenge is a short-lived email verification code. At most one live
// challenge exists per normalized email; re-requesting replaces the code but
// carries the attempt count forward until the rate-limit window lapses.
// CodeHash is a bcrypt hash; the plaintext code only ever leaves the service
// through the out-of-band notifier.
type OtpChallenge struct {
	Email     string    `json:"email"`
	CodeHash  string    `json:"code_hash"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}
