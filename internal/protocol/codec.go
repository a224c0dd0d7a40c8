package protocol

import (
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/wagiedev/ioprocess-go/internal/errors"
)

const (
	// HeaderSize is the size of the length prefix of every frame.
	HeaderSize = 8

	// MaxFrameSize bounds the body length accepted from the worker.
	// Anything larger means the stream is out of sync.
	MaxFrameSize = 1 << 30
)

// FdIO adapts a raw non-blocking descriptor to io.Reader and io.Writer.
// Would-block and interrupted calls surface as unix.EAGAIN and unix.EINTR.
type FdIO int

// Read implements io.Reader over read(2).
func (f FdIO) Read(p []byte) (int, error) {
	n, err := unix.Read(int(f), p)
	if n < 0 {
		n = 0
	}

	return n, err
}

// Write implements io.Writer over write(2).
func (f FdIO) Write(p []byte) (int, error) {
	n, err := unix.Write(int(f), p)
	if n < 0 {
		n = 0
	}

	return n, err
}

// EncodeRequest serializes a request into a complete frame.
func EncodeRequest(id uint64, method string, args map[string]any) ([]byte, error) {
	if args == nil {
		args = map[string]any{}
	}

	body, err := json.Marshal(&Request{ID: id, MethodName: method, Args: args})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	frame := make([]byte, HeaderSize+len(body))
	binary.NativeEndian.PutUint64(frame, uint64(len(body)))
	copy(frame[HeaderSize:], body)

	return frame, nil
}

// EncodeResponse serializes a response into a complete frame.
// The client never sends responses; this is the worker side of the contract.
func EncodeResponse(resp *Response) ([]byte, error) {
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response %d: %w", resp.ID, err)
	}

	frame := make([]byte, HeaderSize+len(body))
	binary.NativeEndian.PutUint64(frame, uint64(len(body)))
	copy(frame[HeaderSize:], body)

	return frame, nil
}

// readState is the phase of a FrameReader.
type readState int

const (
	awaitingLength readState = iota
	awaitingBody
)

func (s readState) String() string {
	switch s {
	case awaitingLength:
		return "awaiting-length"
	case awaitingBody:
		return "awaiting-body"
	default:
		return fmt.Sprintf("readState(%d)", int(s))
	}
}

// FrameReader reassembles response frames from a non-blocking stream.
//
// A FrameReader is not safe for concurrent use; it belongs to the engine goroutine.
type FrameReader struct {
	state      readState
	header     [HeaderSize]byte
	headerRead int
	body       []byte
	bodyRead   int
}

// NewFrameReader returns a reader in the awaiting-length state.
func NewFrameReader() *FrameReader {
	return &FrameReader{}
}

// Remaining returns the number of body bytes still expected for the current frame.
func (fr *FrameReader) Remaining() int {
	if fr.state != awaitingBody {
		return 0
	}

	return len(fr.body) - fr.bodyRead
}

// Process advances the reader with whatever r has available.
//
// It returns a decoded response once a frame completes, or (nil, nil) when the
// stream would block before that. Any other read error, EOF, or an undecodable
// body is returned as a *errors.FramingError.
func (fr *FrameReader) Process(r io.Reader) (*Response, error) {
	for {
		switch fr.state {
		case awaitingLength:
			n, err := r.Read(fr.header[fr.headerRead:])
			fr.headerRead += n

			if wait, ferr := classifyRead(n, err, "read length"); ferr != nil {
				return nil, ferr
			} else if wait {
				return nil, nil
			}

			if fr.headerRead < HeaderSize {
				continue
			}

			size := binary.NativeEndian.Uint64(fr.header[:])
			if size == 0 || size > MaxFrameSize {
				return nil, &errors.FramingError{
					Op:  "read length",
					Err: fmt.Errorf("invalid frame length %d", size),
				}
			}

			fr.body = make([]byte, size)
			fr.bodyRead = 0
			fr.headerRead = 0
			fr.state = awaitingBody

		case awaitingBody:
			n, err := r.Read(fr.body[fr.bodyRead:])
			fr.bodyRead += n

			if wait, ferr := classifyRead(n, err, "read body"); ferr != nil {
				return nil, ferr
			} else if wait {
				return nil, nil
			}

			if fr.bodyRead < len(fr.body) {
				continue
			}

			body := fr.body
			fr.body = nil
			fr.bodyRead = 0
			fr.state = awaitingLength

			var resp Response
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, &errors.FramingError{Op: "decode response", Err: err}
			}

			return &resp, nil
		}
	}
}

// classifyRead decides what a read outcome means for the state machine.
// wait is true when the caller should return and await the next readable event.
func classifyRead(n int, err error, op string) (wait bool, ferr error) {
	switch {
	case err == nil && n == 0:
		return false, &errors.FramingError{Op: op, Err: io.ErrUnexpectedEOF}
	case err == nil:
		return false, nil
	case stderrors.Is(err, unix.EINTR):
		return false, nil
	case stderrors.Is(err, unix.EAGAIN):
		return true, nil
	case stderrors.Is(err, io.EOF):
		return false, &errors.FramingError{Op: op, Err: io.ErrUnexpectedEOF}
	default:
		return false, &errors.FramingError{Op: op, Err: err}
	}
}

// sendState is the phase of a DataSender.
type sendState int

const (
	idle sendState = iota
	sending
)

// DataSender pushes one frame at a time into a non-blocking stream.
//
// A DataSender is not safe for concurrent use; it belongs to the engine goroutine.
type DataSender struct {
	state   sendState
	pending []byte
}

// Busy reports whether a frame is in flight.
func (s *DataSender) Busy() bool {
	return s.state == sending
}

// Unsent returns the number of bytes of the current frame not yet written.
func (s *DataSender) Unsent() int {
	return len(s.pending)
}

// Start begins sending frame. Only one frame may be in flight.
func (s *DataSender) Start(frame []byte) error {
	if s.state == sending {
		return fmt.Errorf("data sender busy with %d unsent bytes", len(s.pending))
	}

	s.pending = frame
	s.state = sending

	return nil
}

// Process writes as much of the in-flight frame as w accepts.
//
// It returns done=true once zero bytes remain, after which the sender is idle
// again. Would-block leaves the remainder for the next writable event; any
// other write error is returned as a *errors.FramingError.
func (s *DataSender) Process(w io.Writer) (bool, error) {
	if s.state == idle {
		return true, nil
	}

	for len(s.pending) > 0 {
		n, err := w.Write(s.pending)
		s.pending = s.pending[n:]

		switch {
		case err == nil && n == 0:
			return false, nil
		case err == nil:
			continue
		case stderrors.Is(err, unix.EINTR):
			continue
		case stderrors.Is(err, unix.EAGAIN):
			return false, nil
		default:
			return false, &errors.FramingError{Op: "write request", Err: err}
		}
	}

	s.pending = nil
	s.state = idle

	return true, nil
}
