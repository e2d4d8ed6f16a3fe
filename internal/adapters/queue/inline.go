package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"communityevents/internal/domain"
)

// InlineNotifier dispatches each notification on its own goroutine with a detached
// context. It is used when no Redis-backed queue is configured.
type InlineNotifier struct {
	dispatcher domain.NotificationDispatcher
	logger     *slog.Logger
	timeout    time.Duration
	wg         sync.WaitGroup
}

// NewInlineNotifier returns an InlineNotifier bounded by timeout per delivery.
func NewInlineNotifier(dispatcher domain.NotificationDispatcher, logger *slog.Logger, timeout time.Duration) *InlineNotifier {
	return &InlineNotifier{dispatcher: dispatcher, logger: logger, timeout: timeout}
}

func (n *InlineNotifier) Notify(ctx context.Context, note domain.Notification) error {
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		if err := n.dispatcher.Dispatch(ctx, note); err != nil {
			n.logger.WarnContext(ctx, "inline notification failed",
				"kind", note.Kind, "user_id", note.UserID, "event_id", note.EventID, "err", err)
		}
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (n *InlineNotifier) Wait() {
	n.wg.Wait()
}
