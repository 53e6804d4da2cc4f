package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"telerelay/pkg/audio"
	"telerelay/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrNotConnected  = errors.New("not connected to relay")
	ErrSessionClosed = errors.New("session closed")
)

type Config struct {
	URL          string
	Header       http.Header
	WriteTimeout time.Duration
	Reconnect    retry.Config
	Scheduler    audio.SchedulerConfig
	// UplinkFrameSize is the number of samples per channel in one uplink message.
	UplinkFrameSize int
}

func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		WriteTimeout:    5 * time.Second,
		Reconnect:       retry.ReconnectConfig(),
		Scheduler:       audio.DefaultSchedulerConfig(),
		UplinkFrameSize: 4096,
	}
}

// TextHandler receives every text message from the relay.
type TextHandler func(text string)

// Session is one operator connection to the relay. It owns the socket, the
// playback scheduler and the uplink framer, and reconnects until closed.
type Session struct {
	cfg       Config
	dialer    *websocket.Dialer
	scheduler *audio.Scheduler
	uplink    *audio.Uplink
	onText    TextHandler
	logger    *zap.SugaredLogger

	mu         sync.Mutex
	conn       *websocket.Conn
	generation uint64
	closed     bool
	done       chan struct{}

	writeMu sync.Mutex
}

func NewSession(cfg Config, out audio.Output, onText TextHandler, logger *zap.SugaredLogger) *Session {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if onText == nil {
		onText = func(string) {}
	}
	if cfg.Scheduler.Logger == nil {
		cfg.Scheduler.Logger = logger
	}

	s := &Session{
		cfg:       cfg,
		dialer:    websocket.DefaultDialer,
		scheduler: audio.NewScheduler(out, cfg.Scheduler),
		onText:    onText,
		logger:    logger,
		done:      make(chan struct{}),
	}
	s.uplink = audio.NewUplink(cfg.UplinkFrameSize, s.SendAudio)
	return s
}

// Run connects and processes messages until ctx ends or Close is called,
// reconnecting with backoff whenever the connection drops.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if s.isClosed() {
			return nil
		}

		reconnect := s.cfg.Reconnect
		reconnect.OnRetry = func(attempt int, err error, delay time.Duration) {
			s.logger.Warnw("relay dial failed", "url", s.cfg.URL, "attempt", attempt, "retry_in", delay, "error", err)
		}
		reconnect.NonRetryableErrors = append([]error{ErrSessionClosed}, s.cfg.Reconnect.NonRetryableErrors...)
		conn, err := retry.RetryWithResult(ctx, reconnect, func() (*websocket.Conn, error) {
			if s.isClosed() {
				return nil, ErrSessionClosed
			}
			conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
			return conn, err
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrSessionClosed) {
				return nil
			}
			return fmt.Errorf("connect to relay: %w", err)
		}

		gen, ok := s.attach(conn)
		if !ok {
			conn.Close()
			return nil
		}
		s.logger.Infow("connected to relay", "url", s.cfg.URL, "generation", gen)

		err = s.readLoop(ctx, conn, gen)
		s.detach(gen)

		if ctx.Err() != nil || s.isClosed() {
			return nil
		}
		s.logger.Warnw("relay connection lost, reconnecting", "error", err)
	}
}

func (s *Session) attach(conn *websocket.Conn) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, false
	}
	s.generation++
	s.conn = conn
	return s.generation, true
}

// detach drops conn if it is still the current one. Audio queued from the
// old connection is discarded.
func (s *Session) detach(gen uint64) {
	s.mu.Lock()
	current := s.generation == gen && s.conn != nil
	var conn *websocket.Conn
	if current {
		conn = s.conn
		s.conn = nil
	}
	s.mu.Unlock()

	if current {
		conn.Close()
		s.scheduler.Reset()
	}
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.generation == gen
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !s.current(gen) {
			return nil
		}

		switch messageType {
		case websocket.TextMessage:
			s.onText(string(data))
		case websocket.BinaryMessage:
			s.scheduler.Enqueue(data)
		}
	}
}

func (s *Session) SendCommand(text string) error {
	return s.write(websocket.TextMessage, []byte(text))
}

// SendAudio sends one uplink frame of interleaved PCM16.
func (s *Session) SendAudio(frame []byte) error {
	return s.write(websocket.BinaryMessage, frame)
}

// SendCapture frames captured samples through the uplink.
func (s *Session) SendCapture(left, right []float32) error {
	return s.uplink.Process(left, right)
}

func (s *Session) write(messageType int, data []byte) error {
	s.mu.Lock()
	conn := s.conn
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return ErrSessionClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("write to relay: %w", err)
	}
	return nil
}

// Connected reports whether a relay connection is currently attached.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *Session) Scheduler() *audio.Scheduler {
	return s.scheduler
}

// Close ends the session. Pending callbacks from the old connection are
// ignored afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.generation++
	conn := s.conn
	s.conn = nil
	close(s.done)
	s.mu.Unlock()

	s.scheduler.Close()
	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return conn.Close()
}
