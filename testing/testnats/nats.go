// Package testnats runs a NATS server in a container for publisher tests.
package testnats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image      = "nats:2.10-alpine"
	clientPort = "4222/tcp"

	// WelcomeSubject is where welcome-email events land by default.
	WelcomeSubject = "notifications.email.welcome"
)

var (
	server     *Server
	serverOnce sync.Once
	serverErr  error
)

// Server is a running NATS container. Tests sharing it must not run in
// parallel since they read the same subjects.
type Server struct {
	container testcontainers.Container
	URL       string
}

// Start returns the package-wide server, starting it on first use. The test
// is skipped when no container provider is reachable.
func Start(t *testing.T) *Server {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	serverOnce.Do(func() {
		server, serverErr = run(context.Background())
	})
	require.NoError(t, serverErr, "start nats container")
	return server
}

func run(ctx context.Context) (*Server, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{clientPort},
			WaitingFor:   wait.ForListeningPort(clientPort),
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}

	endpoint, err := c.PortEndpoint(ctx, clientPort, "nats")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("resolve nats endpoint: %w", err)
	}
	return &Server{container: c, URL: endpoint}, nil
}

// Stop terminates the container.
func (s *Server) Stop(t *testing.T) {
	t.Helper()
	if err := s.container.Terminate(context.Background()); err != nil {
		t.Logf("failed to terminate nats container: %s", err)
	}
}

// Inbox collects messages published on one subject.
type Inbox struct {
	sub *nats.Subscription
}

// Subscribe opens a client connection and listens on subject. The
// subscription is registered with the server before Subscribe returns, so
// nothing published afterwards is missed.
func (s *Server) Subscribe(t *testing.T, subject string) *Inbox {
	t.Helper()

	conn, err := nats.Connect(s.URL)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	sub, err := conn.SubscribeSync(subject)
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	return &Inbox{sub: sub}
}

// Next waits for the next message and decodes its JSON payload into v.
func (in *Inbox) Next(t *testing.T, v interface{}) *nats.Msg {
	t.Helper()

	msg, err := in.sub.NextMsg(5 * time.Second)
	require.NoError(t, err, "no message on %s", in.sub.Subject)
	require.NoError(t, json.Unmarshal(msg.Data, v))
	return msg
}
