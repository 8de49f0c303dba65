package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"schooladmin/internal/logger"

	"github.com/stretchr/testify/assert"
)

func TestAwaitShutdown(t *testing.T) {
	errBind := errors.New("listen tcp :8080: bind: address already in use")

	tests := []struct {
		name        string
		runErr      error
		signal      bool
		shutdownErr error
		wantErr     []error
	}{
		{name: "signal", signal: true},
		{name: "server failure", runErr: errBind, wantErr: []error{errBind}},
		{name: "shutdown failure", signal: true, shutdownErr: context.DeadlineExceeded, wantErr: []error{context.DeadlineExceeded}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errCh := make(chan error, 1)
			quit := make(chan os.Signal, 1)
			if tt.signal {
				quit <- syscall.SIGTERM
			} else {
				errCh <- tt.runErr
			}

			shutdownCalled := false
			err := awaitShutdown(logger.Discard(), errCh, quit, func(ctx context.Context) error {
				shutdownCalled = true
				return tt.shutdownErr
			})

			assert.True(t, shutdownCalled)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			}
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}
