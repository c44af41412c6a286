package combat

import (
	"sync"
	"time"
)

// RevealedLine is one log line surfaced to the presentation layer,
// classified at the moment it appears.
type RevealedLine struct {
	Text  string `json:"text"`
	Flair Flair  `json:"flair,omitempty"`
}

// Pace selects the per-line stagger for a reveal batch.
type Pace int

const (
	// PaceInitial dumps the full transcript quickly on first render.
	PaceInitial Pace = iota
	// PaceIncremental reveals the new_log tail at reading speed.
	PaceIncremental
)

const (
	initialLineDelay     = 80 * time.Millisecond
	incrementalLineDelay = 450 * time.Millisecond
)

type queuedLine struct {
	text  string
	delay time.Duration
}

// Revealer staggers combat log lines one at a time. Lines queue in
// arrival order across batches; each waits its delay, then is
// classified and handed to the sink. The after source is injectable
// so tests never sleep.
type Revealer struct {
	sink  func(RevealedLine)
	after func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	queue   []queuedLine
	started bool

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRevealer wires the sink that receives revealed lines. A nil
// after source falls back to time.After.
func NewRevealer(sink func(RevealedLine), after func(time.Duration) <-chan time.Time) *Revealer {
	if sink == nil {
		sink = func(RevealedLine) {}
	}
	if after == nil {
		after = time.After
	}
	return &Revealer{
		sink:  sink,
		after: after,
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Reveal queues a batch of lines. Lines are trimmed and empties
// dropped before queuing; the pace fixes the per-line delay for the
// whole batch.
func (r *Revealer) Reveal(lines []string, pace Pace) {
	prepared := PrepareLines(lines)
	if len(prepared) == 0 {
		return
	}
	delay := incrementalLineDelay
	if pace == PaceInitial {
		delay = initialLineDelay
	}

	r.mu.Lock()
	for _, line := range prepared {
		r.queue = append(r.queue, queuedLine{text: line, delay: delay})
	}
	if !r.started {
		r.started = true
		go r.run()
	}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Pending reports how many lines still wait to be revealed.
func (r *Revealer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Stop halts the reveal goroutine and drops any queued lines. Safe to
// call more than once.
func (r *Revealer) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if started {
		<-r.done
	}
}

func (r *Revealer) run() {
	defer close(r.done)
	for {
		line, ok := r.next()
		if !ok {
			select {
			case <-r.wake:
				continue
			case <-r.stop:
				return
			}
		}
		select {
		case <-r.after(line.delay):
		case <-r.stop:
			return
		}
		r.sink(RevealedLine{Text: line.text, Flair: ClassifyLine(line.text)})
	}
}

func (r *Revealer) next() (queuedLine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return queuedLine{}, false
	}
	line := r.queue[0]
	r.queue = r.queue[1:]
	return line, true
}
