package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"diagnostics/internal/logger"
	"diagnostics/internal/model"
)

// Publisher emits the downstream report/study-plan generation signal
type Publisher interface {
	PublishDiagnosticsCompleted(ctx context.Context, event *model.DiagnosticsCompletedEvent) error
	Close() error
}

type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	enabled  bool
	log      *logger.Logger
}

// NewRabbitPublisher connects and declares a durable topic exchange. An empty
// URI yields a disabled publisher that only logs.
func NewRabbitPublisher(uri, exchange string, log *logger.Logger) (*RabbitPublisher, error) {
	log = log.With("component", "EventPublisher", "exchange", exchange)
	if uri == "" {
		log.Warn("RabbitMQ URI is empty, event publishing is disabled")
		return &RabbitPublisher{exchange: exchange, enabled: false, log: log}, nil
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Info("event publisher initialized")
	return &RabbitPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		enabled:  true,
		log:      log,
	}, nil
}

func (p *RabbitPublisher) PublishDiagnosticsCompleted(ctx context.Context, event *model.DiagnosticsCompletedEvent) error {
	if !p.enabled {
		p.log.Info("event publishing disabled, skipping event", "event_type", event.EventType, "student_id", event.StudentID)
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		string(event.EventType),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
			Headers: amqp.Table{
				"event_type": string(event.EventType),
				"student_id": event.StudentID,
				"run_id":     event.RunID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.log.Info("published event", "event_type", event.EventType, "student_id", event.StudentID, "run_id", event.RunID)
	return nil
}

func (p *RabbitPublisher) Close() error {
	if !p.enabled {
		return nil
	}
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Warn("error closing RabbitMQ channel", "error", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}
	return nil
}
