//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"

	ioprocess "github.com/wagiedev/ioprocess-go"
)

// skipIfNotInstalled skips the test if the error indicates ioprocess is not found.
func skipIfNotInstalled(t *testing.T, err error) {
	t.Helper()

	if _, ok := errors.AsType[*ioprocess.ExecutableNotFoundError](err); ok {
		t.Skip("ioprocess not installed")
	}
}

// newClient starts a client on the installed ioprocess binary.
func newClient(t *testing.T, opts ...ioprocess.Option) *ioprocess.Client {
	t.Helper()

	client, err := ioprocess.New(context.Background(), opts...)
	if err != nil {
		skipIfNotInstalled(t, err)
		t.Fatalf("New failed: %v", err)
	}

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})

	return client
}
