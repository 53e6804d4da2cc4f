package audio

import (
	"sort"
	"sync"
	"time"
)

// PlayedUnit records one Play call on a ClockOutput.
type PlayedUnit struct {
	Start    time.Duration
	Duration time.Duration
	Samples  int
}

type pendingUnit struct {
	end  time.Duration
	done func()
}

// ClockOutput is an Output on a manually advanced clock. Units complete
// when Advance moves the clock past their end.
type ClockOutput struct {
	mu      sync.Mutex
	now     time.Duration
	pending []pendingUnit
	played  []PlayedUnit
}

func NewClockOutput() *ClockOutput {
	return &ClockOutput{}
}

func (o *ClockOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *ClockOutput) Play(samples []float32, sampleRate int, startAt time.Duration, done func()) {
	duration := Duration(len(samples), sampleRate)

	o.mu.Lock()
	defer o.mu.Unlock()

	o.played = append(o.played, PlayedUnit{Start: startAt, Duration: duration, Samples: len(samples)})
	o.pending = append(o.pending, pendingUnit{end: startAt + duration, done: done})
	sort.SliceStable(o.pending, func(i, j int) bool { return o.pending[i].end < o.pending[j].end })
}

// Advance moves the clock forward by d, firing completions in end order.
// Units scheduled by a completion are fired too if they end within d.
func (o *ClockOutput) Advance(d time.Duration) {
	o.mu.Lock()
	target := o.now + d
	o.mu.Unlock()

	for {
		o.mu.Lock()
		if len(o.pending) == 0 || o.pending[0].end > target {
			o.now = target
			o.mu.Unlock()
			return
		}
		unit := o.pending[0]
		o.pending = o.pending[1:]
		if unit.end > o.now {
			o.now = unit.end
		}
		o.mu.Unlock()

		unit.done()
	}
}

// Played returns every unit handed to the output so far.
func (o *ClockOutput) Played() []PlayedUnit {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]PlayedUnit, len(o.played))
	copy(out, o.played)
	return out
}

// Pending returns the number of units not yet completed.
func (o *ClockOutput) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
