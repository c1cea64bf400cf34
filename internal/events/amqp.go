package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/metrics"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

type AMQPPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu      sync.RWMutex
	closed  bool
	pending chan Event
	done    chan struct{}
}

func connect(ctx context.Context, url string, attempts int) (*amqp.Connection, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("module", "events").Int("attempt", i+1).Msg("rabbitmq dial failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("rabbitmq dial: %w", lastErr)
}

// DialAMQP connects, declares queue and starts the publish loop.
func DialAMQP(ctx context.Context, url, queue string, attempts int) (*AMQPPublisher, error) {
	conn, err := connect(ctx, url, attempts)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	p := &AMQPPublisher{
		conn:    conn,
		ch:      ch,
		queue:   queue,
		pending: make(chan Event, 256),
		done:    make(chan struct{}),
	}
	go p.loop()
	log.Info().Str("module", "events").Str("queue", queue).Msg("rabbitmq publisher ready")
	return p, nil
}

func (p *AMQPPublisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.pending <- ev:
	default:
		metrics.EventsPublishedTotal.WithLabelValues(string(ev.Kind), "dropped").Inc()
		log.Warn().Str("module", "events").Str("kind", string(ev.Kind)).Msg("event queue full, dropping")
	}
}

func (p *AMQPPublisher) loop() {
	defer close(p.done)
	for ev := range p.pending {
		body, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Str("module", "events").Msg("marshal event")
			continue
		}
		err = p.ch.Publish(
			"",      // exchange name
			p.queue, // queue name
			false,   // mandatory
			false,   // immediate
			amqp.Publishing{
				ContentType: "application/json",
				Timestamp:   ev.At,
				Body:        body,
			},
		)
		if err != nil {
			metrics.EventsPublishedTotal.WithLabelValues(string(ev.Kind), "error").Inc()
			log.Error().Err(err).Str("module", "events").Msg("publish event")
			continue
		}
		metrics.EventsPublishedTotal.WithLabelValues(string(ev.Kind), "ok").Inc()
	}
}

// Close drains queued events and closes the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.pending)
	p.mu.Unlock()

	<-p.done
	err := p.ch.Close()
	if cerr := p.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
