package notify

import (
	"context"
	"testing"

	"schooladmin/internal/logger"
	"schooladmin/internal/metrics"
	"schooladmin/testing/testnats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSPublisher(t *testing.T) {
	srv := testnats.Start(t)
	defer srv.Stop(t)

	inbox := srv.Subscribe(t, testnats.WelcomeSubject)

	pub, err := NewNATSPublisher(srv.URL, testnats.WelcomeSubject, logger.Discard(), metrics.NewMock())
	require.NoError(t, err)
	defer pub.Close()

	err = pub.Publish(context.Background(), "northside:john@example.com", WelcomeEmail{TenantSlug: "northside", To: "john@example.com"})
	require.NoError(t, err)

	var event WelcomeEmail
	msg := inbox.Next(t, &event)
	assert.Equal(t, "northside:john@example.com", msg.Header.Get("Message-Key"))
	assert.Equal(t, "john@example.com", event.To)
	assert.Equal(t, "northside", event.TenantSlug)
}
