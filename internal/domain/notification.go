package domain

import "context"

// NotificationKind selects the message sent to a member.
type NotificationKind string

const (
	NotifyTitularConfirmation   NotificationKind = "titular_confirmation"
	NotifyAlternateConfirmation NotificationKind = "alternate_confirmation"
	NotifyPromotion             NotificationKind = "promotion"
	NotifyCancellation          NotificationKind = "cancellation"
)

// Notification is one message to one member about one event.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	UserID  string           `json:"user_id"`
	EventID string           `json:"event_id"`
	Order   int              `json:"order,omitempty"`
}

// Notifier accepts notifications for asynchronous delivery.
// Callers log and discard its errors; they never undo committed state.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotificationDispatcher performs the delivery of one notification.
// Queue workers call it outside any enrollment transaction.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// StateChangePublisher is the hook called after every committed enrollment mutation
// so a real-time layer can refresh waitlists and capacity.
type StateChangePublisher interface {
	PublishStateChanged(ctx context.Context, eventID string) error
}
