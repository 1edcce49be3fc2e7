package worker

import (
	"Go_Drop/internal/mq"
	"Go_Drop/internal/service"
	"Go_Drop/internal/task"
	"context"
	"encoding/json"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Retirer is the coordinator operation the workers drive.
type Retirer interface {
	RetryDeletion(ctx context.Context, fileID string) (service.RetirementOutcome, error)
}

type RetireWorkerOptions struct {
	Prefetch    int
	Concurrency int
	Rate        float64
	Burst       int
}

// RetireWorker consumes delete retries from RabbitMQ.
type RetireWorker struct {
	retirer Retirer
	opts    RetireWorkerOptions
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewRetireWorker(retirer Retirer, opts RetireWorkerOptions, logger *zap.Logger) *RetireWorker {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limiter := rate.NewLimiter(rate.Inf, opts.Burst)
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst)
	}
	return &RetireWorker{retirer: retirer, opts: opts, limiter: limiter, logger: logger}
}

// Run consumes the retire queue until ctx is done.
func (w *RetireWorker) Run(ctx context.Context, client *mq.Client) error {
	if err := client.DeclareTopology(); err != nil {
		return err
	}
	if err := client.Channel.Qos(w.opts.Prefetch, 0, false); err != nil {
		return err
	}
	deliveries, err := client.Channel.Consume(
		mq.QueueRetire,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	return w.consume(ctx, deliveries)
}

// consume dispatches deliveries until ctx is done or the channel closes. It
// returns only after every in-flight delivery has been acked or nacked, so
// the caller may close the channel afterwards.
func (w *RetireWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	sem := make(chan struct{}, w.opts.Concurrency)
	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("retire worker: delivery channel closed")
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				_ = delivery.Nack(false, true)
				return nil
			}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				w.handle(ctx, d)
			}(delivery)
		}
	}
}

// handle acks once the retry is settled. A failed delete is acked too: the
// coordinator has already scheduled the next attempt.
func (w *RetireWorker) handle(ctx context.Context, delivery amqp.Delivery) {
	var msg task.RetireMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil || msg.FileID == "" {
		w.logger.Warn("retire worker: invalid message", zap.ByteString("body", delivery.Body), zap.Error(err))
		_ = delivery.Ack(false)
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		_ = delivery.Nack(false, true)
		return
	}

	outcome, err := w.retirer.RetryDeletion(ctx, msg.FileID)
	switch {
	case err == nil, errors.Is(err, service.ErrDeletionFailed), errors.Is(err, service.ErrFileNotFound):
		w.logger.Info("retire retry handled",
			zap.String("file_id", msg.FileID),
			zap.Int("attempt", msg.Attempt),
			zap.Stringer("outcome", outcome),
			zap.Error(err),
		)
		_ = delivery.Ack(false)
	default:
		w.logger.Error("retire retry failed, requeueing",
			zap.String("file_id", msg.FileID),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err),
		)
		_ = delivery.Nack(false, true)
	}
}
