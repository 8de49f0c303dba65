package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"schooladmin/internal/metrics"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys   []string
	events []WelcomeEmail
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event WelcomeEmail) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func sampleNotice() Notice {
	return Notice{
		TenantName:   "Northside Academy",
		TenantSlug:   "northside",
		GuardianName: "John Doe",
		Email:        "john@example.com",
		StudentNames: []string{"Jane Doe", "Jim Doe"},
		Password:     "0123456789abcdef",
	}
}

func TestCompose(t *testing.T) {
	d := NewDispatcher(Options{PortalURLTemplate: "https://{slug}.schools.test/login", FromAddress: "no-reply@schools.test"}, nil, slog.Default(), metrics.NewMock())

	msg := d.Compose(sampleNotice())
	assert.Equal(t, "john@example.com", msg.To)
	assert.Equal(t, "no-reply@schools.test", msg.From)
	assert.Contains(t, msg.Subject, "Northside Academy")
	for _, want := range []string{"John Doe", "Jane Doe, Jim Doe", "Northside Academy", "john@example.com", "0123456789abcdef", "https://northside.schools.test/login"} {
		assert.Contains(t, msg.Body, want)
	}

	t.Run("existing guardian keeps password", func(t *testing.T) {
		n := sampleNotice()
		n.Password = ""
		msg := d.Compose(n)
		assert.Contains(t, msg.Body, "use your existing password")
	})
}

func TestDispatch_NonProduction(t *testing.T) {
	var buf bytes.Buffer
	pub := &recordingPublisher{}
	d := NewDispatcher(Options{Production: false, PortalURLTemplate: "https://{slug}.x"}, pub, captureLogger(&buf), metrics.NewMock())

	assert.True(t, d.Dispatch(context.Background(), sampleNotice()))
	assert.Empty(t, pub.events, "no network I/O outside production")
	assert.Contains(t, buf.String(), "0123456789abcdef", "debug path logs the full message")
}

func TestDispatch_Production(t *testing.T) {
	ctx := context.Background()

	t.Run("published without logging the password", func(t *testing.T) {
		var buf bytes.Buffer
		pub := &recordingPublisher{}
		d := NewDispatcher(Options{Production: true, PortalURLTemplate: "https://{slug}.x"}, pub, captureLogger(&buf), metrics.NewMock())

		assert.True(t, d.Dispatch(ctx, sampleNotice()))
		require.Len(t, pub.events, 1)
		assert.Equal(t, "northside:john@example.com", pub.keys[0])
		assert.Equal(t, "northside", pub.events[0].TenantSlug)
		assert.Contains(t, pub.events[0].Body, "0123456789abcdef")
		assert.NotContains(t, buf.String(), "0123456789abcdef")
	})

	t.Run("failure is swallowed", func(t *testing.T) {
		var buf bytes.Buffer
		pub := &recordingPublisher{err: errors.New("broker down")}
		d := NewDispatcher(Options{Production: true}, pub, captureLogger(&buf), metrics.NewMock())

		assert.False(t, d.Dispatch(ctx, sampleNotice()))
		assert.Contains(t, buf.String(), "broker down")
		assert.NotContains(t, buf.String(), "0123456789abcdef")
	})

	t.Run("no publisher", func(t *testing.T) {
		d := NewDispatcher(Options{Production: true}, nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), metrics.NewMock())
		assert.False(t, d.Dispatch(ctx, sampleNotice()))
	})

	t.Run("no email", func(t *testing.T) {
		pub := &recordingPublisher{}
		d := NewDispatcher(Options{Production: true}, pub, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), metrics.NewMock())
		n := sampleNotice()
		n.Email = ""
		assert.False(t, d.Dispatch(ctx, n))
		assert.Empty(t, pub.events)
	})
}

func TestKafkaPublisher(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("sends json event", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var event WelcomeEmail
			if err := json.Unmarshal(val, &event); err != nil {
				return err
			}
			if event.To != "john@example.com" {
				return errors.New("unexpected recipient " + event.To)
			}
			return nil
		})

		pub := NewKafkaPublisherWithProducer(producer, "notifications.email.welcome", logger, metrics.NewMock())
		err := pub.Publish(ctx, "northside:john@example.com", WelcomeEmail{To: "john@example.com", Subject: "Welcome"})
		require.NoError(t, err)
		require.NoError(t, pub.Close())
	})

	t.Run("broker error", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		pub := NewKafkaPublisherWithProducer(producer, "notifications.email.welcome", logger, metrics.NewMock())
		err := pub.Publish(ctx, "k", WelcomeEmail{To: "a@example.com"})
		assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
		require.NoError(t, pub.Close())
	})
}
