package services

import (
	"context"
	"log/slog"

	"communityevents/internal/domain"
)

// postCommit runs the side effects of a committed mutation. Failures are logged and
// swallowed: committed enrollment state is never rolled back because of them.
type postCommit struct {
	notifier  domain.Notifier
	publisher domain.StateChangePublisher
	logger    *slog.Logger
}

func (p postCommit) run(ctx context.Context, eventID string, notes []domain.Notification) {
	ctx = context.WithoutCancel(ctx)
	for _, n := range notes {
		if err := p.notifier.Notify(ctx, n); err != nil {
			p.logger.WarnContext(ctx, "notification failed",
				"kind", n.Kind, "event_id", n.EventID, "user_id", n.UserID, "err", err)
		}
	}
	if err := p.publisher.PublishStateChanged(ctx, eventID); err != nil {
		p.logger.WarnContext(ctx, "state change publish failed", "event_id", eventID, "err", err)
	}
}

func promotionNotes(promotions []*domain.Promotion) []domain.Notification {
	notes := make([]domain.Notification, 0, len(promotions))
	for _, p := range promotions {
		notes = append(notes, domain.Notification{
			Kind:    domain.NotifyPromotion,
			UserID:  p.UserID,
			EventID: p.EventID,
		})
	}
	return notes
}
