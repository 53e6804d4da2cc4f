package audio

import (
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WriterOutput plays mono PCM16 by writing it to a sequential sink such as
// a device pipe. The sink drains in real time, so the output keeps a cursor
// of where the audio already written runs out: a unit is padded with
// silence only up to startAt from the later of that cursor and the clock.
// Completion is reported on a timer, lead ahead of the unit's end on the
// cursor, so the next unit is queued before the sink runs dry.
type WriterOutput struct {
	w          io.Writer
	sampleRate int
	lead       time.Duration
	started    time.Time
	logger     *zap.SugaredLogger

	writes chan []byte
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	written   time.Duration
	closed    bool
	timers    map[*time.Timer]struct{}
}

func NewWriterOutput(w io.Writer, sampleRate int, lead time.Duration, logger *zap.SugaredLogger) *WriterOutput {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	o := &WriterOutput{
		w:          w,
		sampleRate: sampleRate,
		lead:       lead,
		started:    time.Now(),
		logger:     logger,
		writes:     make(chan []byte, 16),
		done:       make(chan struct{}),
		timers:     make(map[*time.Timer]struct{}),
	}
	go o.writeLoop()
	return o
}

func (o *WriterOutput) writeLoop() {
	for {
		select {
		case <-o.done:
			return
		case b := <-o.writes:
			if _, err := o.w.Write(b); err != nil {
				o.logger.Warnw("audio sink write failed", "error", err)
				return
			}
		}
	}
}

func (o *WriterOutput) Now() time.Duration {
	return time.Since(o.started)
}

// Play is a no-op after Close; done is never called in that case.
func (o *WriterOutput) Play(samples []float32, sampleRate int, startAt time.Duration, done func()) {
	if sampleRate != o.sampleRate {
		o.logger.Warnw("sample rate mismatch, playing without resampling",
			"unit_rate", sampleRate,
			"device_rate", o.sampleRate,
		)
	}
	pcm := EncodePCM16(samples)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	now := o.Now()
	base := o.written
	if now > base {
		base = now
	}
	if gap := startAt - base; gap > 0 {
		n := int(int64(gap) * int64(o.sampleRate) / int64(time.Second))
		pcm = append(make([]byte, n*bytesPerSample), pcm...)
		base += Duration(n, o.sampleRate)
	}
	o.written = base + Duration(len(samples), o.sampleRate)

	select {
	case o.writes <- pcm:
	case <-o.done:
		return
	}

	wait := o.written - o.lead - now
	if wait < 0 {
		wait = 0
	}
	var timer *time.Timer
	timer = time.AfterFunc(wait, func() {
		o.mu.Lock()
		_, pending := o.timers[timer]
		delete(o.timers, timer)
		o.mu.Unlock()
		if pending {
			done()
		}
	})
	o.timers[timer] = struct{}{}
}

// Buffered returns how much written audio has not played yet.
func (o *WriterOutput) Buffered() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b := o.written - o.Now(); b > 0 {
		return b
	}
	return 0
}

// Close stops pending completions. A sink that is also an io.Closer is
// closed, which unblocks a write in progress.
func (o *WriterOutput) Close() error {
	var err error
	o.closeOnce.Do(func() {
		close(o.done)

		o.mu.Lock()
		o.closed = true
		for t := range o.timers {
			t.Stop()
		}
		o.timers = nil
		o.mu.Unlock()

		if c, ok := o.w.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
