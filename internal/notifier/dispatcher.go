package notifier

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DancingAppsDays/uniprotec-api/pkg/config"
	"github.com/DancingAppsDays/uniprotec-api/pkg/jobs"
)

// Dispatcher fans notifications out through a background queue. Delivery
// failures are retried by the queue and ultimately logged, never surfaced
// to the caller: notifications must not fail business operations.
type Dispatcher struct {
	queue  *jobs.Queue
	logger *zap.Logger
	admins []string
}

// NewDispatcher wires a notifier behind a worker queue.
func NewDispatcher(n Notifier, cfg config.NotificationsConfig, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		logger: logger,
		admins: cfg.AdminEmails,
	}
	d.queue = jobs.NewQueue("notifications", func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(Message)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return n.Send(ctx, msg)
	}, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		Logger:     logger,
	})
	return d
}

// Start launches the delivery workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (d *Dispatcher) Stop() {
	d.queue.Stop()
}

// Dispatch enqueues a message for async delivery. Enqueue failures are
// logged and swallowed.
func (d *Dispatcher) Dispatch(msg Message) {
	err := d.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    string(msg.Kind),
		Payload: msg,
	})
	if err != nil {
		d.logger.Sugar().Warnw("dropping notification",
			"kind", msg.Kind, "to", msg.To, "error", err)
	}
}

// DispatchAdmins sends the message to every configured admin address.
func (d *Dispatcher) DispatchAdmins(msg Message) {
	for _, addr := range d.admins {
		m := msg
		m.To = addr
		d.Dispatch(m)
	}
}
