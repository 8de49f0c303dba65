package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"schooladmin/internal/metrics"
)

// Notice describes one guardian to welcome. Password is empty when the
// guardian already had an account before this request.
type Notice struct {
	TenantName   string
	TenantSlug   string
	GuardianName string
	Email        string
	StudentNames []string
	Password     string
}

type Message struct {
	To      string
	From    string
	Subject string
	Body    string
}

// WelcomeEmail is the event handed to the mail service.
type WelcomeEmail struct {
	TenantSlug string    `json:"tenantSlug"`
	To         string    `json:"to"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Publisher interface {
	Publish(ctx context.Context, key string, event WelcomeEmail) error
	Close() error
}

type Options struct {
	Production        bool
	PortalURLTemplate string
	FromAddress       string
}

type Dispatcher struct {
	opts      Options
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewDispatcher(opts Options, publisher Publisher, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		opts:      opts,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
	}
}

func (d *Dispatcher) PortalURL(slug string) string {
	return strings.ReplaceAll(d.opts.PortalURLTemplate, "{slug}", slug)
}

func (d *Dispatcher) Compose(n Notice) Message {
	students := strings.Join(n.StudentNames, ", ")

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", n.GuardianName)
	if students != "" {
		fmt.Fprintf(&b, "You have been registered as a guardian of %s at %s.\n\n", students, n.TenantName)
	} else {
		fmt.Fprintf(&b, "A parent portal account has been created for you at %s.\n\n", n.TenantName)
	}
	b.WriteString("Your parent portal login:\n")
	fmt.Fprintf(&b, "  Email:    %s\n", n.Email)
	if n.Password != "" {
		fmt.Fprintf(&b, "  Password: %s\n\n", n.Password)
		b.WriteString("Please change your password after the first login.\n")
	} else {
		b.WriteString("  Password: unchanged, use your existing password\n")
	}
	fmt.Fprintf(&b, "\nSign in at %s\n\n", d.PortalURL(n.TenantSlug))
	fmt.Fprintf(&b, "Regards,\n%s\n", n.TenantName)

	return Message{
		To:      n.Email,
		From:    d.opts.FromAddress,
		Subject: fmt.Sprintf("Welcome to %s parent portal", n.TenantName),
		Body:    b.String(),
	}
}

// Dispatch sends the welcome message and reports whether it went out.
// Failures are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notice) bool {
	if n.Email == "" {
		d.logger.WarnContext(ctx, "guardian has no email, skipping welcome message", "guardian", n.GuardianName)
		return false
	}

	msg := d.Compose(n)

	if !d.opts.Production {
		d.logger.DebugContext(ctx, "welcome message (not sent outside production)",
			"to", msg.To,
			"subject", msg.Subject,
			"body", msg.Body,
		)
		d.metrics.RecordNotification(ctx, true)
		return true
	}

	if d.publisher == nil {
		d.logger.ErrorContext(ctx, "no notification publisher configured", "to", msg.To)
		d.metrics.RecordNotification(ctx, false)
		return false
	}

	event := WelcomeEmail{
		TenantSlug: n.TenantSlug,
		To:         msg.To,
		From:       msg.From,
		Subject:    msg.Subject,
		Body:       msg.Body,
		CreatedAt:  time.Now().UTC(),
	}
	if err := d.publisher.Publish(ctx, n.TenantSlug+":"+msg.To, event); err != nil {
		d.logger.ErrorContext(ctx, "failed to send welcome message", "to", msg.To, "tenant", n.TenantSlug, "error", err)
		d.metrics.RecordNotification(ctx, false)
		return false
	}

	d.logger.InfoContext(ctx, "welcome message sent", "to", msg.To, "tenant", n.TenantSlug)
	d.metrics.RecordNotification(ctx, true)
	return true
}

// LogPublisher records that a message would be sent. The body is not logged.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, key string, event WelcomeEmail) error {
	p.logger.InfoContext(ctx, "welcome message queued", "key", key, "to", event.To, "subject", event.Subject)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
