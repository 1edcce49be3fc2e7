package task

import (
	"Go_Drop/internal/service"
	"context"
	"encoding/json"
	"time"
)

// RetireMessage asks a worker to retry the storage delete of a retiring file.
type RetireMessage struct {
	FileID  string `json:"file_id"`
	Attempt int    `json:"attempt"`
}

// dlqMessage is parked in the dead-letter queue once retries run out.
type dlqMessage struct {
	FileID   string    `json:"file_id"`
	Attempt  int       `json:"attempt"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// RetryPublisher is the part of the broker client the scheduler needs.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, body []byte) error
}

// MQScheduler schedules delete retries through the broker's delayed retry
// queue. Files past maxRetries go to the dead-letter queue and are left to
// the periodic sweeper.
type MQScheduler struct {
	publisher  RetryPublisher
	maxRetries int
	delays     []time.Duration
}

var _ service.RetryScheduler = (*MQScheduler)(nil)

func NewMQScheduler(publisher RetryPublisher, maxRetries int, delays []time.Duration) *MQScheduler {
	return &MQScheduler{publisher: publisher, maxRetries: maxRetries, delays: delays}
}

func (s *MQScheduler) ScheduleRetry(ctx context.Context, fileID string, attempt int) error {
	if s.maxRetries > 0 && attempt > s.maxRetries {
		body, err := json.Marshal(dlqMessage{FileID: fileID, Attempt: attempt, Reason: "max retries exceeded", FailedAt: time.Now()})
		if err != nil {
			return err
		}
		return s.publisher.PublishDLQ(ctx, body)
	}
	body, err := json.Marshal(RetireMessage{FileID: fileID, Attempt: attempt})
	if err != nil {
		return err
	}
	return s.publisher.PublishRetry(ctx, body, service.PickRetryDelay(attempt, s.delays))
}
