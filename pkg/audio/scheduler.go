package audio

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Output plays sample units on its own clock.
type Output interface {
	// Now returns the output clock position.
	Now() time.Duration
	// Play starts samples at startAt on the output clock and calls done
	// once they have finished playing. done may be called from any goroutine.
	Play(samples []float32, sampleRate int, startAt time.Duration, done func())
}

type State int

const (
	Idle State = iota
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

type SchedulerConfig struct {
	SampleRate int
	// MaxQueue bounds queued chunks; the oldest is dropped when full.
	// Zero means unbounded.
	MaxQueue int
	// OnStart is called for every unit handed to the output.
	OnStart func(start, duration time.Duration)
	Logger  *zap.SugaredLogger
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SampleRate: DownlinkSampleRate,
		MaxQueue:   256,
	}
}

// Scheduler plays enqueued PCM chunks back to back. Each unit starts at the
// later of the output clock and the end of the previous unit, and only one
// unit is in flight at a time.
type Scheduler struct {
	out Output
	cfg SchedulerConfig

	mu         sync.Mutex
	queue      [][]byte
	state      State
	nextStart  time.Duration
	generation uint64
	closed     bool
	dropped    uint64
	played     uint64
}

func NewScheduler(out Output, cfg SchedulerConfig) *Scheduler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DownlinkSampleRate
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Scheduler{
		out: out,
		cfg: cfg,
	}
}

// Enqueue queues a chunk and starts draining when idle. It never blocks on
// playback.
func (s *Scheduler) Enqueue(chunk []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.cfg.MaxQueue > 0 && len(s.queue) >= s.cfg.MaxQueue {
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.dropped++
		s.cfg.Logger.Warnw("audio queue full, dropping oldest chunk", "max_queue", s.cfg.MaxQueue, "dropped", s.dropped)
	}
	s.queue = append(s.queue, chunk)

	var start func()
	if s.state == Idle {
		start = s.scheduleNextLocked()
	}
	s.mu.Unlock()

	if start != nil {
		start()
	}
}

// scheduleNextLocked pops the next playable chunk and returns the call that
// hands it to the output, or nil after returning to Idle. Empty chunks
// complete immediately.
func (s *Scheduler) scheduleNextLocked() func() {
	for len(s.queue) > 0 {
		chunk := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]

		samples := DecodePCM16(chunk)
		if len(samples) == 0 {
			continue
		}

		duration := Duration(len(samples), s.cfg.SampleRate)
		start := s.out.Now()
		if s.nextStart > start {
			start = s.nextStart
		}
		s.nextStart = start + duration
		s.state = Draining
		s.played++

		gen := s.generation
		rate := s.cfg.SampleRate
		onStart := s.cfg.OnStart
		return func() {
			if onStart != nil {
				onStart(start, duration)
			}
			s.out.Play(samples, rate, start, func() { s.complete(gen) })
		}
	}

	s.state = Idle
	return nil
}

// complete handles a finished unit. Completions from an earlier generation
// are ignored.
func (s *Scheduler) complete(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	next := s.scheduleNextLocked()
	s.mu.Unlock()

	if next != nil {
		next()
	}
}

// Reset drops queued audio and invalidates the unit in flight.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.queue = nil
	s.state = Idle
	s.nextStart = 0
}

// Close stops scheduling for good. Later Enqueue calls are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.generation++
	s.queue = nil
	s.state = Idle
}

func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dropped returns the number of chunks discarded because the queue was full.
func (s *Scheduler) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Played returns the number of units handed to the output.
func (s *Scheduler) Played() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played
}
