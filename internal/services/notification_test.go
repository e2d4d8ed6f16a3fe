package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"communityevents/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmailService struct {
	calls []string
	data  []*domain.EnrollmentEmailData
	err   error
}

func (s *recordingEmailService) record(kind string, data *domain.EnrollmentEmailData) error {
	s.calls = append(s.calls, kind)
	s.data = append(s.data, data)
	return s.err
}

func (s *recordingEmailService) SendTitularConfirmation(ctx context.Context, data *domain.EnrollmentEmailData) error {
	return s.record("titular", data)
}

func (s *recordingEmailService) SendAlternateConfirmation(ctx context.Context, data *domain.EnrollmentEmailData) error {
	return s.record("alternate", data)
}

func (s *recordingEmailService) SendPromotion(ctx context.Context, data *domain.EnrollmentEmailData) error {
	return s.record("promotion", data)
}

func (s *recordingEmailService) SendCancellation(ctx context.Context, data *domain.EnrollmentEmailData) error {
	return s.record("cancellation", data)
}

func TestNotificationDispatcher_Dispatch(t *testing.T) {
	tests := []struct {
		name     string
		note     domain.Notification
		wantCall string
		wantErr  error
	}{
		{name: "titular", note: domain.Notification{Kind: domain.NotifyTitularConfirmation}, wantCall: "titular"},
		{name: "alternate with order", note: domain.Notification{Kind: domain.NotifyAlternateConfirmation, Order: 3}, wantCall: "alternate"},
		{name: "promotion", note: domain.Notification{Kind: domain.NotifyPromotion}, wantCall: "promotion"},
		{name: "cancellation", note: domain.Notification{Kind: domain.NotifyCancellation}, wantCall: "cancellation"},
		{name: "unknown kind", note: domain.Notification{Kind: "bogus"}, wantErr: domain.ErrInvalidInput},
		{name: "unknown user", note: domain.Notification{Kind: domain.NotifyPromotion, UserID: "ghost"}, wantErr: domain.ErrNotFound},
		{name: "unknown event", note: domain.Notification{Kind: domain.NotifyPromotion, EventID: "ghost"}, wantErr: domain.ErrEventNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			eventID := h.seedEvent(1, 1)
			h.store.users["u-1"] = &domain.User{ID: "u-1", Email: "ana@example.com", Name: "Ana", LastName: "Paz"}
			emails := &recordingEmailService{}
			d := NewNotificationDispatcher(&memUserRepo{store: h.store}, &memEventRepo{store: h.store}, emails, time.Second)

			note := tt.note
			if note.UserID == "" {
				note.UserID = "u-1"
			}
			if note.EventID == "" {
				note.EventID = eventID
			}
			err := d.Dispatch(context.Background(), note)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, emails.calls)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []string{tt.wantCall}, emails.calls)
			data := emails.data[0]
			assert.Equal(t, "ana@example.com", data.Email)
			assert.Equal(t, "Ana Paz", data.FullName)
			assert.Equal(t, "Salida al cerro", data.EventName)
			assert.Equal(t, "Cerro Catedral", data.Location)
			assert.Equal(t, tt.note.Order, data.Order)
		})
	}
}

func TestNotificationDispatcher_PropagatesSendError(t *testing.T) {
	h := newHarness()
	eventID := h.seedEvent(1, 1)
	h.store.users["u-1"] = &domain.User{ID: "u-1", Email: "a@example.com", Name: "A"}
	boom := errors.New("ses throttled")
	d := NewNotificationDispatcher(&memUserRepo{store: h.store}, &memEventRepo{store: h.store}, &recordingEmailService{err: boom}, time.Second)

	err := d.Dispatch(context.Background(), domain.Notification{Kind: domain.NotifyPromotion, UserID: "u-1", EventID: eventID})
	assert.ErrorIs(t, err, boom)
}
