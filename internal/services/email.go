package services

import (
	"context"
	"fmt"
	"log/slog"

	"communityevents/internal/domain"
)

type emailService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	logger   *slog.Logger
}

// NewEmailService returns an EmailService that uses the given Mailer and template renderer.
func NewEmailService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, logger *slog.Logger) domain.EmailService {
	return &emailService{mailer: mailer, renderer: renderer, logger: logger}
}

func (s *emailService) SendTitularConfirmation(ctx context.Context, data *domain.EnrollmentEmailData) error {
	return s.send(ctx, "titular_confirmation", data)
}

func (s *emailService) SendAlternateConfirmation(ctx context.Context, data *domain.EnrollmentEmailData) error {
	return s.send(ctx, "alternate_confirmation", data)
}

func (s *emailService) SendPromotion(ctx context.Context, data *domain.EnrollmentEmailData) error {
	return s.send(ctx, "promotion", data)
}

func (s *emailService) SendCancellation(ctx context.Context, data *domain.EnrollmentEmailData) error {
	return s.send(ctx, "cancellation", data)
}

func (s *emailService) send(ctx context.Context, template string, data *domain.EnrollmentEmailData) error {
	if data == nil {
		return fmt.Errorf("%s email data is nil", template)
	}
	subject, htmlBody, textBody, err := s.renderer.Render(template, data)
	if err != nil {
		return fmt.Errorf("failed to render %s template: %w", template, err)
	}
	if err := s.mailer.Send(ctx, data.Email, subject, htmlBody, textBody); err != nil {
		return fmt.Errorf("failed to send %s email: %w", template, err)
	}
	s.logger.InfoContext(ctx, "email sent", "template", template, "to", data.Email)
	return nil
}
