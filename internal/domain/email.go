package domain

import (
	"context"
	"time"
)

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// EnrollmentEmailData holds data for every enrollment-related email.
type EnrollmentEmailData struct {
	Email     string
	FullName  string
	EventName string
	EventDate time.Time
	Location  string
	Order     int // alternate position, only for alternate confirmations
}

// EmailService defines the contract for sending domain-level emails.
type EmailService interface {
	SendTitularConfirmation(ctx context.Context, data *EnrollmentEmailData) error
	SendAlternateConfirmation(ctx context.Context, data *EnrollmentEmailData) error
	SendPromotion(ctx context.Context, data *EnrollmentEmailData) error
	SendCancellation(ctx context.Context, data *EnrollmentEmailData) error
}
