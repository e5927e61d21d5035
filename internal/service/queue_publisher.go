package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/gigexecs/gigexecs-api/internal/queue"
)

// AMQPPublisher publishes parse jobs to RabbitMQ.  Each publish dials its
// own connection; jobs are rare enough that pooling is not worth it.
// Errors are logged and returned so callers may fall back to the client
// driven background call.
type AMQPPublisher struct {
	URL    string
	Logger *log.Logger
}

func (p *AMQPPublisher) logf(format string, args ...any) {
	l := p.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf("rabbitmq: "+format, args...)
}

// PublishParseJob sends job to the profile.parse_cv queue as a persistent
// message.
func (p *AMQPPublisher) PublishParseJob(ctx context.Context, job q.ParseCVJob) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.logf("dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logf("channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// durable so jobs survive broker restarts
	if _, err := ch.QueueDeclare(
		q.ParseQueue, // name
		true,         // durable
		false,        // autoDelete
		false,        // exclusive
		false,        // noWait
		nil,          // args
	); err != nil {
		p.logf("queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		p.logf("marshal job failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    job.SourceFileID,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",           // default exchange
		q.ParseQueue, // routing key = queue name
		false,        // mandatory
		false,        // immediate
		pub,
	); err != nil {
		p.logf("publish failed: %v", err)
		return err
	}
	return nil
}
