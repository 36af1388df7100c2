// Package events publishes audit records to RabbitMQ. Publishing happens on a
// worker pool so request handlers never wait on the broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/pkg/jobs"
)

const auditJobType = "audit.publish"

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AuditEvent is the message body sent for each audit record.
type AuditEvent struct {
	ID        string                `json:"id"`
	Table     string                `json:"table"`
	Operation models.AuditOperation `json:"operation"`
	UserID    string                `json:"user_id"`
	OldData   models.JSONB          `json:"old_data"`
	NewData   models.JSONB          `json:"new_data"`
	CreatedAt time.Time             `json:"created_at"`
}

// RoutingKey is audit.<table>.<operation>, lower case.
func (e AuditEvent) RoutingKey() string {
	return fmt.Sprintf("audit.%s.%s", e.Table, strings.ToLower(string(e.Operation)))
}

// Publisher pushes audit events through a bounded queue onto an exchange.
type Publisher struct {
	ch       Channel
	exchange string
	queue    *jobs.Queue
	logger   *zap.Logger
	timeout  time.Duration
}

// NewPublisher wires a publisher around an open channel.
func NewPublisher(ch Channel, exchange string, cfg jobs.QueueConfig) *Publisher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	p := &Publisher{ch: ch, exchange: exchange, logger: cfg.Logger, timeout: 5 * time.Second}
	if cfg.OnDrop == nil {
		cfg.OnDrop = func(job jobs.Job, err error) {
			p.logger.Error("audit event dropped", zap.String("audit_id", job.ID), zap.Error(err))
		}
	}
	p.queue = jobs.NewQueue("audit-events", p.handle, cfg)
	return p
}

// Start launches the publishing workers.
func (p *Publisher) Start(ctx context.Context) {
	p.queue.Start(ctx)
}

// Stop drains in-flight publishes and closes the channel.
func (p *Publisher) Stop() {
	p.queue.Stop()
	if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		p.logger.Warn("close amqp channel", zap.Error(err))
	}
}

// PublishAudit schedules the record for publication. It never blocks.
func (p *Publisher) PublishAudit(record models.AuditRecord) {
	event := AuditEvent{
		ID:        record.ID,
		Table:     record.TableName,
		Operation: record.Operation,
		UserID:    record.UserID,
		OldData:   record.OldData,
		NewData:   record.NewData,
		CreatedAt: record.CreatedAt,
	}
	if err := p.queue.Enqueue(jobs.Job{ID: record.ID, Type: auditJobType, Payload: event}); err != nil {
		p.logger.Warn("audit event not queued", zap.String("audit_id", record.ID), zap.Error(err))
	}
}

func (p *Publisher) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(AuditEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.ch.PublishWithContext(ctx, p.exchange, event.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    time.Now().UTC(),
		Type:         auditJobType,
		Body:         body,
	})
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}
