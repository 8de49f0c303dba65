package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"schooladmin/internal/metrics"

	"github.com/nats-io/nats.go"
)

type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewNATSPublisher(url string, subject string, logger *slog.Logger, m *metrics.Metrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	m.Broker().RecordConnectionChange(context.Background(), "nats", 1)

	return &NATSPublisher{
		conn:    nc,
		subject: subject,
		logger:  logger,
		metrics: m,
	}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, key string, event WelcomeEmail) error {
	valueBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Header.Set("Message-Key", key)
	msg.Data = valueBytes

	start := time.Now()
	err = p.conn.PublishMsg(msg)
	if err == nil {
		err = p.conn.FlushWithContext(ctx)
	}
	p.metrics.Broker().RecordPublish(ctx, "nats", p.subject, time.Since(start), err)
	if err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "message sent to NATS", "subject", p.subject, "key", key)
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	p.metrics.Broker().RecordConnectionChange(context.Background(), "nats", -1)
	return nil
}
