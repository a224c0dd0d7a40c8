package command

import (
	stderrors "errors"
	"sync"

	"github.com/wagiedev/ioprocess-go/internal/errors"
	"github.com/wagiedev/ioprocess-go/internal/protocol"
)

// Command is one queued call awaiting dispatch by the engine.
type Command struct {
	Method  string
	Args    map[string]any
	Pending *protocol.PendingRequest
}

// Channel is an unbounded FIFO of commands paired with a WakeSignal.
// Submit is safe from many goroutines; TryPop is meant for the engine only.
type Channel struct {
	wake *WakeSignal

	mu     sync.Mutex
	queue  []Command
	closed bool
}

// NewChannel creates a channel that notifies through wake.
func NewChannel(wake *WakeSignal) *Channel {
	return &Channel{wake: wake}
}

// Wake returns the channel's wake signal.
func (c *Channel) Wake() *WakeSignal {
	return c.wake
}

// Submit enqueues cmd and wakes the engine.
// After Close it fails with errors.ErrClosed without enqueueing.
func (c *Channel) Submit(cmd Command) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return errors.ErrClosed
	}

	c.queue = append(c.queue, cmd)
	c.mu.Unlock()

	// A wake pipe closed after the append means shutdown is underway; the
	// command is already queued and will be drained with the rest.
	if err := c.wake.Signal(); err != nil && !stderrors.Is(err, errors.ErrClosed) {
		return err
	}

	return nil
}

// TryPop removes the oldest command without blocking.
func (c *Channel) TryPop() (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return Command{}, false
	}

	cmd := c.queue[0]
	c.queue[0] = Command{}
	c.queue = c.queue[1:]

	return cmd, true
}

// Len returns the number of queued commands.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.queue)
}

// Close stops accepting commands. Queued commands stay until DrainAll.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
}

// DrainAll removes and returns every queued command.
func (c *Channel) DrainAll() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	drained := c.queue
	c.queue = nil

	return drained
}
