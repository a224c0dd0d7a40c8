package ioprocess

import (
	"context"
	"fmt"
)

// WithClient manages client lifecycle with automatic cleanup.
//
// This helper creates a client with the provided options, executes the
// callback function, and ensures proper cleanup via Close() when done.
//
// If the callback returns an error, it is returned to the caller.
// If Close() fails, a warning is logged but does not override the callback's error.
//
// Example usage:
//
//	err := ioprocess.WithClient(ctx, func(c *ioprocess.Client) error {
//	    st, err := c.Stat(ctx, "/var/lib/images")
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(st.Size)
//	    return nil
//	},
//	    ioprocess.WithLogger(log),
//	    ioprocess.WithMaxThreads(10),
//	)
func WithClient(ctx context.Context, fn func(*Client) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	client, err := New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn("failed to close client", "error", closeErr)
		}
	}()

	return fn(client)
}
