package protocol

import (
	"encoding/json"

	"github.com/wagiedev/ioprocess-go/internal/errors"
)

// Request is a single call sent to the worker.
//
// Wire format:
//
//	{
//	  "id": 42,
//	  "methodName": "echo",
//	  "args": {"text": "hello", "sleep": 0}
//	}
type Request struct {
	// ID correlates the response; ids are never reused while pending.
	ID uint64 `json:"id"`

	// MethodName selects the worker function.
	MethodName string `json:"methodName"`

	// Args holds the named arguments. A nil map is sent as {}.
	Args map[string]any `json:"args"`
}

// Response is the worker's answer to a Request.
//
// Wire format for success:
//
//	{"id": 42, "result": "hello"}
//
// Wire format for error:
//
//	{"id": 42, "errcode": 2, "errstr": "No such file or directory"}
type Response struct {
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Errcode int             `json:"errcode,omitempty"`
	Errstr  string          `json:"errstr,omitempty"`

	// local marks responses made up by the client rather than read off the wire.
	local bool
}

// IsError reports whether the response carries a non-zero error code.
func (r *Response) IsError() bool {
	return r.Errcode != 0
}

// IsCrash reports whether the response is the synthetic crash resolution.
// A worker reply carrying the same code is an ordinary worker error.
func (r *Response) IsCrash() bool {
	return r.local && r.Errcode == errors.CrashCode
}

// CrashResponse builds the synthetic response used when the worker connection is lost.
func CrashResponse(id uint64, message string) *Response {
	if message == "" {
		message = errors.CrashMessage
	}

	return &Response{
		ID:      id,
		Errcode: errors.CrashCode,
		Errstr:  message,
		local:   true,
	}
}
