package whop

import "github.com/griphq/retention-engine/internal/domain"

// MapStatus folds Whop's membership statuses into the simplified set the
// risk model consumes. Unknown statuses are treated as cancelled so a new
// upstream status never counts someone as retained by accident.
func MapStatus(whopStatus string) domain.SubscriptionStatus {
	switch whopStatus {
	case "active":
		return domain.SubscriptionActive
	case "trialing":
		return domain.SubscriptionTrialing
	case "past_due", "unresolved":
		return domain.SubscriptionPastDue
	case "canceled", "canceling", "completed", "expired":
		return domain.SubscriptionCancelled
	default:
		return domain.SubscriptionCancelled
	}
}
