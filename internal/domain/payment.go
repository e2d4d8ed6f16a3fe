package domain

import "context"

// PaymentStatusApproved is the only payment status that triggers enrollment.
const PaymentStatusApproved = "approved"

// PaymentKindEvent marks payments made to join a paid event.
const PaymentKindEvent = "evento_pago"

// PaymentConfirmation is the payload delivered by the payment webhook intake.
type PaymentConfirmation struct {
	PaymentID  string              `json:"payment_id"`
	Status     string              `json:"status"`
	Kind       string              `json:"kind"`
	UserID     string              `json:"user_id"`
	EventID    string              `json:"event_id"`
	SubgroupID *string             `json:"subgroup_id,omitempty"`
	Details    RegistrationDetails `json:"details"`
}

// PaymentOutcome reports what the intake did with a confirmation.
type PaymentOutcome string

const (
	PaymentIgnored          PaymentOutcome = "ignored"
	PaymentEnrolled         PaymentOutcome = "enrolled"
	PaymentAlreadyProcessed PaymentOutcome = "already_processed"
)

// PaymentService turns confirmed payments into enrollments.
type PaymentService interface {
	HandlePayment(ctx context.Context, p *PaymentConfirmation) (PaymentOutcome, *EnrollmentResult, error)
}
