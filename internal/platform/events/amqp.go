package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQPConfig struct {
	URL      string
	Exchange string
	// Breaker trips after this many consecutive failures.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// AMQPPublisher publishes events to a topic exchange. Publishes go through a
// circuit breaker that rejects them while open.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  Channel
	exchange string
	breaker  *gobreaker.CircuitBreaker[struct{}]
	logger   zerolog.Logger
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(cfg AMQPConfig, logger zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	p, err := NewAMQPPublisher(ch, cfg, logger)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewAMQPPublisher wraps an open channel.
func NewAMQPPublisher(ch Channel, cfg AMQPConfig, logger zerolog.Logger) (*AMQPPublisher, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = "carelink.appointments"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	log := logger.With().Str("component", "events").Str("exchange", cfg.Exchange).Logger()
	maxFailures := cfg.MaxFailures
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "amqp-publisher",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &AMQPPublisher{
		channel:  ch,
		exchange: cfg.Exchange,
		breaker:  breaker,
		logger:   log,
	}, nil
}

var ErrBrokerUnavailable = errors.New("message broker unavailable")

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.breaker.Execute(func() (struct{}, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		return struct{}{}, p.channel.PublishWithContext(ctx, p.exchange, e.RoutingKey(), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID.String(),
			Timestamp:    e.OccurredAt,
			Type:         e.Type,
			Body:         body,
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.RoutingKey(), err)
	}
	return nil
}

// State reports the breaker state, for health output.
func (p *AMQPPublisher) State() string {
	return p.breaker.State().String()
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
