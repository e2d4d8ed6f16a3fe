package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"communityevents/internal/domain"
)

const (
	// TypeNotification is the asynq task type carrying one domain.Notification.
	TypeNotification = "notification:send"
	// QueueNotifications is the asynq queue notification tasks are enqueued on.
	QueueNotifications = "notifications"

	maxRetry = 3
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type asynqNotifier struct {
	client taskEnqueuer
	logger *slog.Logger
}

// NewAsynqNotifier returns a Notifier that enqueues one task per notification.
func NewAsynqNotifier(client *asynq.Client, logger *slog.Logger) domain.Notifier {
	return &asynqNotifier{client: client, logger: logger}
}

func (n *asynqNotifier) Notify(ctx context.Context, note domain.Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	info, err := n.client.EnqueueContext(ctx,
		asynq.NewTask(TypeNotification, payload),
		asynq.Queue(QueueNotifications),
		asynq.MaxRetry(maxRetry),
	)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	n.logger.DebugContext(ctx, "notification enqueued", "task_id", info.ID, "kind", note.Kind, "user_id", note.UserID)
	return nil
}

// NewNotificationHandler returns the asynq handler that delivers notification tasks.
// Tasks that can never succeed are not retried.
func NewNotificationHandler(dispatcher domain.NotificationDispatcher, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var note domain.Notification
		if err := json.Unmarshal(task.Payload(), &note); err != nil {
			return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
		}
		err := dispatcher.Dispatch(ctx, note)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrEventNotFound) || errors.Is(err, domain.ErrInvalidInput) {
			logger.WarnContext(ctx, "dropping undeliverable notification", "kind", note.Kind, "user_id", note.UserID, "event_id", note.EventID, "err", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
}

// NewServer returns an asynq server consuming the notification queue.
func NewServer(opt asynq.RedisConnOpt, concurrency int, logger *slog.Logger) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueNotifications: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.WarnContext(ctx, "notification task failed", "type", task.Type(), "err", err)
		}),
	})
}

// NewServeMux routes notification tasks to handler.
func NewServeMux(handler asynq.Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeNotification, handler)
	return mux
}
