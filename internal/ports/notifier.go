package ports

import "context"

type RecipientType string

const (
	RecipientDriver   RecipientType = "driver"
	RecipientCustomer RecipientType = "customer"
)

// Port: fire-and-forget push notifications. Delivery is best-effort; callers
// log failures and never let them block the state machine.
type Notifier interface {
	Notify(ctx context.Context, recipient RecipientType, recipientID, event string, payload map[string]any) error
}
