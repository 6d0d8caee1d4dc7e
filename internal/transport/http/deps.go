package http

import (
	"github.com/rental-gate-api/internal/gateway"
	"github.com/rental-gate-api/internal/infrastructure/dynamo"
	"github.com/rental-gate-api/internal/infrastructure/kv"
	s3infra "github.com/rental-gate-api/internal/infrastructure/s3"
	"github.com/rental-gate-api/internal/infrastructure/smtp"
	"github.com/rental-gate-api/internal/infrastructure/sns"
)

// Deps holds all infrastructure dependencies for the router. Archive and
// Publisher may be nil; the flows that use them degrade to log-only.
type Deps struct {
	KV              kv.Store
	UserRepo        *dynamo.UserRepo
	PaymentRepo     *dynamo.PaymentRepo
	EntitlementRepo *dynamo.EntitlementRepo
	VideoRepo       *dynamo.VideoRepo
	Mailer          smtp.Mailer
	Registry        *gateway.Registry
	Archive         *s3infra.Archive
	Publisher       sns.EventPublisher
}
