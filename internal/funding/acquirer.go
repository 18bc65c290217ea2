package funding

import (
	"context"

	"github.com/google/uuid"
)

// DecisionApproved is the only status that lets a payout proceed.
const DecisionApproved = "approved"

// Gateway represents a connector to the payout processor (card push or mobile money).
type Gateway interface {
	AuthorizePayout(ctx context.Context, input PayoutAuthorization) (AuthorizationDecision, error)
}

// AuthorizationDecision captures the response from the gateway.
type AuthorizationDecision struct {
	Reference string
	Status    string
}

// PayoutAuthorization captures data for a withdrawal to an external account.
type PayoutAuthorization struct {
	OwnerID     string
	Destination string
	Amount      int64
	Currency    string
}

// StaticGateway approves every payout with a synthetic reference.
type StaticGateway struct{}

// AuthorizePayout approves the withdrawal request.
func (StaticGateway) AuthorizePayout(_ context.Context, _ PayoutAuthorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: DecisionApproved}, nil
}
