// Package protocol implements the length-prefixed wire protocol spoken with
// the ioprocess worker, and the table correlating request ids to waiting callers.
//
// Every frame is an 8-byte native-endian unsigned length followed by that many
// bytes of UTF-8 JSON. Requests look like
//
//	{"id": 7, "methodName": "stat", "args": {"path": "/tmp"}}
//
// and responses like
//
//	{"id": 7, "result": {...}}
//	{"id": 7, "errcode": 2, "errstr": "No such file or directory"}
//
// The pipes are non-blocking, so both directions are modelled as explicit
// state machines driven by readiness events:
//   - FrameReader moves between awaiting-length and awaiting-body
//   - DataSender moves between idle and sending
//
// Example usage from a poll loop:
//
//	reader := protocol.NewFrameReader()
//	resp, err := reader.Process(fdIO(readFd))
//	if err != nil {
//	    // framing failure, restart the worker
//	}
//	if resp != nil {
//	    table.Resolve(resp.ID, resp)
//	}
package protocol
