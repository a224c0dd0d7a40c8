// Package reactor runs the engine that multiplexes one client's requests onto
// its worker process.
//
// A single goroutine owns the worker's descriptors. It waits in poll(2) on the
// response pipe, the diagnostic pipe, the wake pipe and, while a request is
// being written, the request pipe. At most one request is on the wire at a
// time; responses may come back in any order and are matched by id.
//
// When the connection breaks for any reason every pending request is failed
// with the crash code, the worker is reaped and a new one is started after a
// backoff delay. The command queue, the pending table and the id counter
// outlive individual workers.
package reactor
