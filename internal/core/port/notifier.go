package port

import "context"

// NotificationKind selects the message template.
type NotificationKind string

const (
	NotifyOTP             NotificationKind = "otp"
	NotifyProfileActive   NotificationKind = "profile_active"
	NotifyProfileRejected NotificationKind = "profile_rejected"
)

// Notifier delivers templated messages. Delivery is best-effort; callers log and drop failures.
type Notifier interface {
	Notify(ctx context.Context, address string, kind NotificationKind, data map[string]string) error
}
