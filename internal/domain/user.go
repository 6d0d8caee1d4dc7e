package domain

import "time"

// User is the minimal profile row persisted on successful OTP verification.
// The user id is derived deterministically from the email, so repeated logins
// map to the same row. Persistence of this row is best-effort: identity
// issuance never fails because the users table is unavailable.
type User struct {
	UserID    string    `json:"id" dynamodbav:"user_id"`
	Email     string    `json:"email" dynamodbav:"email"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	LastLogin time.Time `json:"last_login" dynamodbav:"last_login"`
}
