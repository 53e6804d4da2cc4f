package http

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"telerelay/internal/core/domain"
	"telerelay/internal/core/ports"
	"telerelay/internal/infrastructure/streaming"
	"telerelay/pkg/config"
	"telerelay/pkg/errors"
	"telerelay/pkg/optimize"
	"telerelay/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	ingressMediaType = "multipart/x-mixed-replace"
	streamBoundary   = "frame"
	readChunkSize    = 32 * 1024
)

type StreamConfig struct {
	Boundary          string
	KeepaliveInterval time.Duration
	MaxFrameBytes     int
	PollInterval      time.Duration
}

func StreamConfigFrom(cfg *config.Config) StreamConfig {
	return StreamConfig{
		Boundary:          cfg.MJPEG.Boundary,
		KeepaliveInterval: cfg.MJPEG.KeepaliveInterval,
		MaxFrameBytes:     cfg.MJPEG.MaxFrameBytes,
		PollInterval:      cfg.MJPEG.StreamPollInterval,
	}
}

var _ ports.HTTPHandler = (*StreamHandler)(nil)

type StreamHandler struct {
	frames ports.FrameService
	cfg    StreamConfig
	logger *zap.SugaredLogger
}

func NewStreamHandler(frames ports.FrameService, cfg StreamConfig, logger *zap.SugaredLogger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &StreamHandler{
		frames: frames,
		cfg:    cfg,
		logger: logger,
	}
}

func (h *StreamHandler) SetupRoutes(router gin.IRouter) {
	router.POST("/mjpeg_input", h.IngestMJPEG)
	router.GET("/frame", h.GetFrame)
	router.GET("/stream", h.StreamFrames)
	router.GET("/ingress", h.GetIngress)
}

// checkContentType accepts multipart/x-mixed-replace with the configured
// boundary token. A leading "--" on either side is ignored.
func (h *StreamHandler) checkContentType(header string) error {
	if header == "" {
		return errors.NewUnsupportedMediaError("Missing Content-Type header.")
	}
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeUnsupportedMedia, "Malformed Content-Type header.", http.StatusBadRequest)
	}
	if mediaType != ingressMediaType {
		return errors.NewUnsupportedMediaError(fmt.Sprintf("Expected %s, got %s.", ingressMediaType, mediaType))
	}
	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return errors.NewUnsupportedMediaError("Missing multipart boundary.")
	}
	if strings.TrimPrefix(boundary, "--") != strings.TrimPrefix(h.cfg.Boundary, "--") {
		return errors.NewUnsupportedMediaError("Unexpected multipart boundary.").
			WithContext("boundary", boundary)
	}
	return nil
}

// IngestMJPEG consumes a camera upload until the body ends or the client
// goes away, replacing the latest frame with every part it completes.
func (h *StreamHandler) IngestMJPEG(c *gin.Context) {
	if err := h.checkContentType(c.GetHeader("Content-Type")); err != nil {
		appErr := errors.GetAppError(err)
		c.String(appErr.HTTPStatus, appErr.Message)
		_ = c.Error(err)
		return
	}

	// The response stays open while the body is still being read.
	if err := http.NewResponseController(c.Writer).EnableFullDuplex(); err != nil {
		h.logger.Debugw("full duplex unavailable for mjpeg ingress", "error", err)
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	ingress := h.frames.BeginIngress(ctx, c.Request.RemoteAddr)
	ctx, span := tracing.TraceIngress(ctx, ingress.ID, ingress.RemoteAddr)
	defer span.End()

	assembler := streaming.NewAssembler(h.cfg.Boundary, h.cfg.MaxFrameBytes, func(payload []byte) {
		if err := h.frames.PublishFrame(ctx, payload); err != nil {
			h.logger.Warnw("failed to publish frame", "ingress_id", ingress.ID, "bytes", len(payload), "error", err)
		}
	}, h.logger.With("ingress_id", ingress.ID))

	defer func() {
		h.frames.EndIngress(ctx, ingress, assembler.Frames())
		tracing.AddSpanAttributes(ctx, tracing.FrameSeqKey.Int64(int64(assembler.Frames())))
	}()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.keepalive(ctx, cancel, unwrapWriter(c.Writer))
	}()

	err := h.readBody(ctx, c.Request.Body, assembler)
	cancel()
	wg.Wait()

	// a trailing partial frame is never published
	assembler.Reset()

	if err != nil && !stderrors.Is(err, context.Canceled) {
		h.logger.Infow("mjpeg ingress closed by error", "ingress_id", ingress.ID, "error", err)
		tracing.RecordError(ctx, err)
		span.SetStatus(codes.Error, err.Error())
	}
}

var readBuffers = optimize.NewBytePool(readChunkSize)

func (h *StreamHandler) readBody(ctx context.Context, body io.Reader, assembler *streaming.Assembler) error {
	bufp := readBuffers.Get()
	defer readBuffers.Put(bufp)
	buf := *bufp

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := body.Read(buf)
		if n > 0 {
			_, _ = assembler.Write(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// unwrapWriter returns the server's writer so flush errors reach the
// caller; gin's Flush drops them.
func unwrapWriter(w gin.ResponseWriter) http.ResponseWriter {
	if u, ok := w.(interface{ Unwrap() http.ResponseWriter }); ok {
		return u.Unwrap()
	}
	return w
}

// keepalive writes and flushes a newline every interval. A failed write or
// flush cancels the ingress and expires the read deadline so a body read
// blocked on a dead peer returns.
func (h *StreamHandler) keepalive(ctx context.Context, cancel context.CancelFunc, w http.ResponseWriter) {
	rc := http.NewResponseController(w)
	ticker := time.NewTicker(h.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := w.Write([]byte("\n"))
			if err == nil {
				err = rc.Flush()
			}
			if err != nil {
				h.logger.Infow("mjpeg keepalive failed, ending ingress", "error", err)
				cancel()
				if derr := rc.SetReadDeadline(time.Now()); derr != nil && !stderrors.Is(derr, http.ErrNotSupported) {
					h.logger.Debugw("failed to expire ingress read deadline", "error", derr)
				}
				return
			}
		}
	}
}

func (h *StreamHandler) GetFrame(c *gin.Context) {
	frame, err := h.frames.LatestFrame(c.Request.Context())
	if err != nil {
		if stderrors.Is(err, domain.ErrFrameNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No frame available"})
			return
		}
		_ = c.Error(errors.WrapError(err, errors.ErrCodeServiceUnavailable, "frame store unavailable", http.StatusServiceUnavailable))
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("X-Frame-Timestamp", frame.CapturedAt.UTC().Format(time.RFC3339Nano))
	c.Header("X-Frame-Sequence", strconv.FormatUint(frame.Sequence, 10))
	c.Data(http.StatusOK, "image/jpeg", frame.Payload)
}

// StreamFrames re-streams the latest frame as multipart/x-mixed-replace,
// emitting a part whenever the stored sequence changes.
func (h *StreamHandler) StreamFrames(c *gin.Context) {
	ctx := c.Request.Context()

	mw := multipart.NewWriter(c.Writer)
	if err := mw.SetBoundary(streamBoundary); err != nil {
		_ = c.Error(errors.NewInternalError(err.Error()))
		return
	}

	c.Header("Content-Type", fmt.Sprintf("%s; boundary=%s", ingressMediaType, streamBoundary))
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	var lastSeq uint64
	sent := false
	for {
		frame, err := h.frames.LatestFrame(ctx)
		if err == nil && (!sent || frame.Sequence != lastSeq) {
			if err := writeFramePart(mw, frame); err != nil {
				h.logger.Debugw("stream client gone", "error", err)
				return
			}
			c.Writer.Flush()
			lastSeq = frame.Sequence
			sent = true
		} else if err != nil && !stderrors.Is(err, domain.ErrFrameNotFound) {
			h.logger.Warnw("failed to read frame for stream", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeFramePart(mw *multipart.Writer, frame domain.Frame) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "image/jpeg")
	header.Set("Content-Length", strconv.Itoa(len(frame.Payload)))
	header.Set("X-Frame-Timestamp", frame.CapturedAt.UTC().Format(time.RFC3339Nano))

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(frame.Payload)
	return err
}

func (h *StreamHandler) GetIngress(c *gin.Context) {
	ingress, ok := h.frames.ActiveIngress()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active":      true,
		"ingress_id":  ingress.ID,
		"remote_addr": ingress.RemoteAddr,
		"started_at":  ingress.StartedAt.UTC().Format(time.RFC3339),
	})
}
