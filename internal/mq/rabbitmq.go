package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeRetire      = "retire.exchange"
	ExchangeRetireRetry = "retire.retry.exchange"
	ExchangeRetireDLQ   = "retire.dlq.exchange"

	QueueRetire      = "retire.queue"
	QueueRetireRetry = "retire.retry.queue"
	QueueRetireDLQ   = "retire.dlq.queue"

	RoutingRetire      = "retire"
	RoutingRetireRetry = "retire.retry"
	RoutingRetireDLQ   = "retire.dlq"
)

type Client struct {
	Conn      *amqp.Connection
	Channel   *amqp.Channel
	publishMu sync.Mutex
}

// Dial opens a connection and a channel to url.
func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, Channel: ch}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

func (c *Client) closed() bool {
	return c.Conn.IsClosed() || c.Channel.IsClosed()
}

type queueSpec struct {
	exchange string
	queue    string
	routing  string
	args     amqp.Table
}

// topology lists the retire exchanges and queues. Messages in the retry queue
// expire after their per-message TTL and dead-letter back into the retire queue.
var topology = []queueSpec{
	{exchange: ExchangeRetire, queue: QueueRetire, routing: RoutingRetire},
	{exchange: ExchangeRetireRetry, queue: QueueRetireRetry, routing: RoutingRetireRetry, args: amqp.Table{
		"x-dead-letter-exchange":    ExchangeRetire,
		"x-dead-letter-routing-key": RoutingRetire,
	}},
	{exchange: ExchangeRetireDLQ, queue: QueueRetireDLQ, routing: RoutingRetireDLQ},
}

func (c *Client) DeclareTopology() error {
	for _, binding := range topology {
		if err := c.Channel.ExchangeDeclare(binding.exchange, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", binding.exchange, err)
		}
		if _, err := c.Channel.QueueDeclare(binding.queue, true, false, false, false, binding.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", binding.queue, err)
		}
		if err := c.Channel.QueueBind(binding.queue, binding.routing, binding.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", binding.queue, err)
		}
	}
	return nil
}

func (c *Client) PublishRetry(ctx context.Context, body []byte, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	expiration := fmt.Sprintf("%d", delay.Milliseconds())
	return c.publish(ctx, ExchangeRetireRetry, RoutingRetireRetry, body, expiration)
}

func (c *Client) PublishDLQ(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeRetireDLQ, RoutingRetireDLQ, body, "")
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, expiration string) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
	if expiration != "" {
		msg.Expiration = expiration
	}
	return c.Channel.PublishWithContext(
		ctx,
		exchange,
		key,
		false,
		false,
		msg,
	)
}

// Publisher keeps one publishing client alive, redialing when the broker
// connection drops.
type Publisher struct {
	url    string
	mu     sync.Mutex
	client *Client
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// Get returns a connected client with the topology declared.
func (p *Publisher) Get() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		if !p.client.closed() {
			return p.client, nil
		}
		p.client.Close()
		p.client = nil
	}
	client, err := Dial(p.url)
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *Publisher) PublishRetry(ctx context.Context, body []byte, delay time.Duration) error {
	client, err := p.Get()
	if err != nil {
		return err
	}
	return client.PublishRetry(ctx, body, delay)
}

func (p *Publisher) PublishDLQ(ctx context.Context, body []byte) error {
	client, err := p.Get()
	if err != nil {
		return err
	}
	return client.PublishDLQ(ctx, body)
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Close()
	p.client = nil
}
