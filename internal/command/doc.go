// Package command hands outbound requests from caller goroutines to the
// engine goroutine.
//
// Channel is an unbounded multi-producer/single-consumer FIFO. Every Submit
// also writes one byte into a WakeSignal pipe, so an engine blocked in poll(2)
// on the receiver end wakes up even if it is mid-wait.
package command
