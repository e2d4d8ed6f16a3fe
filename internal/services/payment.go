package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"communityevents/internal/domain"
)

type paymentService struct {
	enrollments domain.EnrollmentService
	logger      *slog.Logger
}

// NewPaymentService returns a PaymentService that turns approved event payments into enrollments.
func NewPaymentService(enrollments domain.EnrollmentService, logger *slog.Logger) domain.PaymentService {
	return &paymentService{enrollments: enrollments, logger: logger}
}

func (s *paymentService) HandlePayment(ctx context.Context, p *domain.PaymentConfirmation) (domain.PaymentOutcome, *domain.EnrollmentResult, error) {
	if p == nil {
		return "", nil, fmt.Errorf("%w: payment is required", domain.ErrInvalidInput)
	}
	if p.Status != domain.PaymentStatusApproved || p.Kind != domain.PaymentKindEvent {
		s.logger.InfoContext(ctx, "payment ignored", "payment_id", p.PaymentID, "status", p.Status, "kind", p.Kind)
		return domain.PaymentIgnored, nil, nil
	}

	result, err := s.enrollments.Enroll(ctx, &domain.EnrollmentRequest{
		EventID:    p.EventID,
		UserID:     p.UserID,
		SubgroupID: p.SubgroupID,
		Details:    p.Details,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyEnrolled) {
			return domain.PaymentAlreadyProcessed, nil, nil
		}
		return "", nil, err
	}
	s.logger.InfoContext(ctx, "payment enrolled user",
		"payment_id", p.PaymentID, "event_id", p.EventID, "user_id", p.UserID, "placement", result.Placement)
	return domain.PaymentEnrolled, result, nil
}
