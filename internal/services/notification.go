package services

import (
	"context"
	"fmt"
	"time"

	"communityevents/internal/domain"
)

type notificationDispatcher struct {
	userRepo       domain.UserRepository
	eventRepo      domain.EventRepository
	emailService   domain.EmailService
	contextTimeout time.Duration
}

// NewNotificationDispatcher returns a dispatcher that resolves the recipient and event of a
// notification and sends the matching email. Queue workers and the inline notifier call it.
func NewNotificationDispatcher(userRepo domain.UserRepository, eventRepo domain.EventRepository, emailService domain.EmailService, timeout time.Duration) domain.NotificationDispatcher {
	return &notificationDispatcher{
		userRepo:       userRepo,
		eventRepo:      eventRepo,
		emailService:   emailService,
		contextTimeout: timeout,
	}
}

func (d *notificationDispatcher) Dispatch(ctx context.Context, n domain.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, d.contextTimeout)
	defer cancel()

	user, err := d.userRepo.GetByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("get user %s: %w", n.UserID, err)
	}
	event, err := loadEvent(ctx, d.eventRepo, n.EventID)
	if err != nil {
		return err
	}
	data := &domain.EnrollmentEmailData{
		Email:     user.Email,
		FullName:  user.FullName(),
		EventName: event.Name,
		EventDate: event.Date,
		Location:  event.Location,
		Order:     n.Order,
	}

	switch n.Kind {
	case domain.NotifyTitularConfirmation:
		return d.emailService.SendTitularConfirmation(ctx, data)
	case domain.NotifyAlternateConfirmation:
		return d.emailService.SendAlternateConfirmation(ctx, data)
	case domain.NotifyPromotion:
		return d.emailService.SendPromotion(ctx, data)
	case domain.NotifyCancellation:
		return d.emailService.SendCancellation(ctx, data)
	default:
		return fmt.Errorf("%w: unknown notification kind %q", domain.ErrInvalidInput, n.Kind)
	}
}
