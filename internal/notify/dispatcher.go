package notify

import (
	"Go_Drop/internal/metrics"
	"context"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher delivers an access link to one recipient.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipient, link string) error
}

// Delivery is one recipient and the link minted for them.
type Delivery struct {
	Recipient string
	Link      string
}

// Failure is a delivery that could not be completed.
type Failure struct {
	Recipient string
	Err       error
}

// BuildAccessLink returns the link a recipient uses to fetch the file.
func BuildAccessLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/api/access?token=" + url.QueryEscape(token)
}

// Notifier fans deliveries out to a Dispatcher.
type Notifier struct {
	dispatcher  Dispatcher
	concurrency int
	logger      *zap.Logger
}

// NewNotifier creates a notifier sending at most concurrency messages at once.
func NewNotifier(d Dispatcher, concurrency int, logger *zap.Logger) *Notifier {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Notifier{dispatcher: d, concurrency: concurrency, logger: logger}
}

// NotifyAll attempts every delivery independently and returns the failures
// in input order.
func (n *Notifier) NotifyAll(ctx context.Context, deliveries []Delivery) []Failure {
	errs := make([]error, len(deliveries))
	sem := make(chan struct{}, n.concurrency)
	var wg sync.WaitGroup
	for i, d := range deliveries {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, d Delivery) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = n.dispatcher.Dispatch(ctx, d.Recipient, d.Link)
		}(i, d)
	}
	wg.Wait()

	var failures []Failure
	for i, err := range errs {
		if err == nil {
			continue
		}
		metrics.NotificationFailures.Inc()
		n.logger.Warn("notify recipient failed",
			zap.String("recipient", deliveries[i].Recipient),
			zap.Error(err),
		)
		failures = append(failures, Failure{Recipient: deliveries[i].Recipient, Err: err})
	}
	return failures
}

// LogDispatcher only logs links. Used when mail delivery is disabled.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, recipient, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.logger.Info("access link issued", zap.String("recipient", recipient), zap.String("link", link))
	return nil
}
