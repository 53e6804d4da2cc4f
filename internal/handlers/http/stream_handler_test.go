package http

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"telerelay/internal/core/ports"
	"telerelay/internal/core/services"
	"telerelay/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBoundary = "ESP32CAM_BOUNDARY"

func testStreamConfig() StreamConfig {
	return StreamConfig{
		Boundary:          testBoundary,
		KeepaliveInterval: time.Hour,
		MaxFrameBytes:     1 << 20,
		PollInterval:      5 * time.Millisecond,
	}
}

func newTestRouter(cfg StreamConfig) (*gin.Engine, ports.FrameService) {
	gin.SetMode(gin.TestMode)

	frames := services.NewFrameService(memory.NewMemoryFrameStore(), nil, nil)
	router := gin.New()
	NewStreamHandler(frames, cfg, nil).SetupRoutes(router)
	return router, frames
}

func framePart(payload []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", testBoundary, len(payload))
	b.Write(payload)
	b.WriteString("\r\n")
	return b.Bytes()
}

func ingressContentType() string {
	return "multipart/x-mixed-replace; boundary=" + testBoundary
}

func TestIngestMJPEG_RejectsBadContentType(t *testing.T) {
	router, _ := newTestRouter(testStreamConfig())

	tests := []struct {
		name        string
		contentType string
	}{
		{"missing", ""},
		{"wrong media type", "image/jpeg"},
		{"missing boundary", "multipart/x-mixed-replace"},
		{"wrong boundary", "multipart/x-mixed-replace; boundary=OTHER"},
		{"malformed", "multipart/x-mixed-replace; boundary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mjpeg_input", strings.NewReader("x"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
			assert.NotEmpty(t, w.Body.String())
		})
	}
}

func TestIngestMJPEG_StoresLastFrame(t *testing.T) {
	router, frames := newTestRouter(testStreamConfig())

	var body bytes.Buffer
	body.Write(framePart([]byte("first")))
	body.Write(framePart([]byte("second")))
	fmt.Fprintf(&body, "--%s\r\n\r\npartial", testBoundary)

	req := httptest.NewRequest(http.MethodPost, "/mjpeg_input", &body)
	req.Header.Set("Content-Type", "multipart/x-mixed-replace; boundary=--"+testBoundary)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))

	frame, err := frames.LatestFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), frame.Payload)

	_, active := frames.ActiveIngress()
	assert.False(t, active)
}

func TestIngestMJPEG_LiveUploadWithKeepalive(t *testing.T) {
	cfg := testStreamConfig()
	cfg.KeepaliveInterval = 10 * time.Millisecond
	router, frames := newTestRouter(cfg)

	server := httptest.NewServer(router)
	defer server.Close()

	pr, pw := io.Pipe()
	req, err := http.NewRequest(http.MethodPost, server.URL+"/mjpeg_input", pr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ingressContentType())

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		done <- result{resp, err}
	}()

	_, err = pw.Write(framePart([]byte("live")))
	require.NoError(t, err)
	// the closing delimiter of the first part
	_, err = pw.Write([]byte("--" + testBoundary + "\r\n"))
	require.NoError(t, err)

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("no response headers")
	}
	require.NoError(t, res.err)
	defer res.resp.Body.Close()
	assert.Equal(t, http.StatusOK, res.resp.StatusCode)

	assert.Eventually(t, func() bool {
		frame, err := frames.LatestFrame(context.Background())
		return err == nil && string(frame.Payload) == "live"
	}, 2*time.Second, 5*time.Millisecond)

	_, active := frames.ActiveIngress()
	assert.True(t, active)

	b, err := bufio.NewReader(res.resp.Body).ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), b)

	require.NoError(t, pw.Close())
	assert.Eventually(t, func() bool {
		_, active := frames.ActiveIngress()
		return !active
	}, 2*time.Second, 5*time.Millisecond)
}

func TestGetFrame(t *testing.T) {
	router, frames := newTestRouter(testStreamConfig())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/frame", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, frames.PublishFrame(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xD9}))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/frame", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Frame-Timestamp"))
	assert.Equal(t, "1", w.Header().Get("X-Frame-Sequence"))
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xD9}, w.Body.Bytes())
}

func TestStreamFrames_EmitsOnSequenceChange(t *testing.T) {
	router, frames := newTestRouter(testStreamConfig())
	server := httptest.NewServer(router)
	defer server.Close()

	require.NoError(t, frames.PublishFrame(context.Background(), []byte("one")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)
	assert.Equal(t, "frame", params["boundary"])

	reader := multipart.NewReader(resp.Body, params["boundary"])
	readPart := func(n int) []byte {
		part, err := reader.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
		buf := make([]byte, n)
		_, err = io.ReadFull(part, buf)
		require.NoError(t, err)
		return buf
	}

	assert.Equal(t, []byte("one"), readPart(3))

	require.NoError(t, frames.PublishFrame(context.Background(), []byte("two!")))
	assert.Equal(t, []byte("two!"), readPart(4))
}

func TestGetIngress(t *testing.T) {
	router, frames := newTestRouter(testStreamConfig())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ingress", nil))
	assert.JSONEq(t, `{"active":false}`, w.Body.String())

	ingress := frames.BeginIngress(context.Background(), "10.0.0.9:4000")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ingress", nil))
	assert.Contains(t, w.Body.String(), ingress.ID)
	assert.Contains(t, w.Body.String(), "10.0.0.9:4000")
}

// brokenConn is a response writer whose peer has gone away.
type brokenConn struct {
	header      http.Header
	writeErr    error
	flushErr    error
	deadlineSet chan time.Time
}

func newBrokenConn(writeErr, flushErr error) *brokenConn {
	return &brokenConn{
		header:      http.Header{},
		writeErr:    writeErr,
		flushErr:    flushErr,
		deadlineSet: make(chan time.Time, 1),
	}
}

func (b *brokenConn) Header() http.Header { return b.header }

func (b *brokenConn) WriteHeader(int) {}

func (b *brokenConn) Write(p []byte) (int, error) {
	if b.writeErr != nil {
		return 0, b.writeErr
	}
	return len(p), nil
}

func (b *brokenConn) FlushError() error { return b.flushErr }

func (b *brokenConn) SetReadDeadline(t time.Time) error {
	select {
	case b.deadlineSet <- t:
	default:
	}
	return nil
}

func TestKeepalive_FailureEndsIngress(t *testing.T) {
	tests := []struct {
		name string
		conn *brokenConn
	}{
		{"write fails", newBrokenConn(io.ErrClosedPipe, nil)},
		{"flush fails", newBrokenConn(nil, io.ErrClosedPipe)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStreamHandler(nil, StreamConfig{KeepaliveInterval: 5 * time.Millisecond}, nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			returned := make(chan struct{})
			go func() {
				h.keepalive(ctx, cancel, tt.conn)
				close(returned)
			}()

			select {
			case <-returned:
			case <-time.After(time.Second):
				t.Fatal("keepalive did not stop")
			}
			assert.ErrorIs(t, ctx.Err(), context.Canceled)

			select {
			case deadline := <-tt.conn.deadlineSet:
				assert.False(t, deadline.After(time.Now()))
			default:
				t.Fatal("read deadline not expired")
			}
		})
	}
}

func TestKeepalive_HealthyConnectionKeepsIngress(t *testing.T) {
	h := NewStreamHandler(nil, StreamConfig{KeepaliveInterval: 2 * time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	conn := newBrokenConn(nil, nil)
	h.keepalive(ctx, cancel, conn)

	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	assert.Empty(t, conn.deadlineSet)
}
