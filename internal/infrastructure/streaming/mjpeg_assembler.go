package streaming

import (
	"bytes"
	"strings"

	"go.uber.org/zap"
)

var (
	crlf       = []byte("\r\n")
	headerTerm = []byte("\r\n\r\n")
)

// FrameFunc receives one extracted payload. The slice is owned by the callee.
type FrameFunc func(payload []byte)

// Assembler extracts frame payloads from a multipart/x-mixed-replace body
// delivered in arbitrary chunks. It implements io.Writer and is not safe for
// concurrent use.
type Assembler struct {
	delim     []byte
	maxBuffer int
	buf       []byte
	scanned   int // offset up to which no closing boundary can start
	onFrame   FrameFunc

	frames    uint64
	overflows uint64

	logger *zap.SugaredLogger
}

// NewAssembler builds an assembler for the given boundary token. A leading
// "--" on the token is ignored. maxFrameBytes caps an incomplete part,
// headers included; when exceeded the buffer is discarded.
func NewAssembler(boundary string, maxFrameBytes int, onFrame FrameFunc, logger *zap.SugaredLogger) *Assembler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Assembler{
		delim:     []byte("--" + strings.TrimPrefix(boundary, "--")),
		maxBuffer: maxFrameBytes,
		onFrame:   onFrame,
		logger:    logger,
	}
}

// Write appends p and emits every frame completed by it. It never fails.
func (a *Assembler) Write(p []byte) (int, error) {
	a.buf = append(a.buf, p...)
	a.drain()
	return len(p), nil
}

// drain emits every complete part in the buffer. A part's payload runs from
// the blank line after its headers up to the next boundary, minus the CRLF
// that multipart framing puts before each boundary, so stored JPEGs are
// byte exact.
func (a *Assembler) drain() {
	for {
		start := bytes.Index(a.buf, a.delim)
		if start < 0 {
			// Keep just enough to complete a boundary split across writes.
			if keep := len(a.delim) - 1; len(a.buf) > keep {
				a.consume(len(a.buf) - keep)
			}
			return
		}
		if start > 0 {
			a.consume(start)
		}

		from := len(a.delim)
		if a.scanned > from {
			from = a.scanned
		}
		next := bytes.Index(a.buf[from:], a.delim)
		if next < 0 {
			if resume := len(a.buf) - len(a.delim) + 1; resume > from {
				a.scanned = resume
			}
			if a.maxBuffer > 0 && len(a.buf) > a.maxBuffer {
				a.overflows++
				a.logger.Warnw("mjpeg part exceeds max frame size, discarding buffer",
					"buffered_bytes", len(a.buf),
					"max_frame_bytes", a.maxBuffer,
				)
				a.Reset()
			}
			return
		}
		end := from + next

		part := a.buf[len(a.delim):end]
		if sep := bytes.Index(part, headerTerm); sep >= 0 {
			payload := bytes.TrimSuffix(part[sep+len(headerTerm):], crlf)
			a.emit(payload)
		} else {
			a.logger.Debugw("skipping mjpeg part without header terminator", "bytes", len(part))
		}

		// The closing boundary opens the next part.
		a.consume(end)
	}
}

func (a *Assembler) emit(payload []byte) {
	a.frames++
	if a.onFrame == nil {
		return
	}
	frame := make([]byte, len(payload))
	copy(frame, payload)
	a.onFrame(frame)
}

// consume drops the first n buffered bytes, reusing the backing array.
func (a *Assembler) consume(n int) {
	a.buf = a.buf[:copy(a.buf, a.buf[n:])]
	a.scanned = 0
}

// Frames returns the number of frames emitted so far.
func (a *Assembler) Frames() uint64 {
	return a.frames
}

// Overflows returns how many times the buffer was discarded for exceeding
// the frame size cap.
func (a *Assembler) Overflows() uint64 {
	return a.overflows
}

// Buffered returns the number of bytes held for an incomplete part.
func (a *Assembler) Buffered() int {
	return len(a.buf)
}

// Reset drops any partial data, as on end of stream.
func (a *Assembler) Reset() {
	a.buf = a.buf[:0]
	a.scanned = 0
}
