package turn

import (
	"sync"
	"time"
)

// TurnMetrics tracks latency at each phase of one turn, measured from
// the moment the input arrived (utterance captured or text submitted).
type TurnMetrics struct {
	InputTime      time.Time
	TranscriptTime time.Time
	FirstTokenTime time.Time
	SynthesisTime  time.Time
	DoneTime       time.Time

	TranscribeLatency time.Duration
	FirstTokenLatency time.Duration
	SynthesisLatency  time.Duration
	TotalLatency      time.Duration

	Tokens int
}

// historyCap bounds the per-turn archive used for averaging.
const historyCap = 100

// Collector records per-turn latency marks. Goroutine-safe; the
// orchestrator marks phases as they complete and the dashboard reads
// snapshots.
type Collector struct {
	mu      sync.Mutex
	current TurnMetrics
	history []TurnMetrics
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{history: make([]TurnMetrics, 0, historyCap)}
}

// MarkInput resets the current turn and records the reference point all
// later latencies are measured from.
func (c *Collector) MarkInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = TurnMetrics{InputTime: time.Now()}
}

// MarkTranscript records transcription completion.
func (c *Collector) MarkTranscript() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.TranscriptTime = time.Now()
	if !c.current.InputTime.IsZero() {
		c.current.TranscribeLatency = c.current.TranscriptTime.Sub(c.current.InputTime)
	}
}

// MarkFirstToken records the first streamed model token. Later calls
// within the same turn are no-ops.
func (c *Collector) MarkFirstToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Tokens++
	if !c.current.FirstTokenTime.IsZero() {
		return
	}
	c.current.FirstTokenTime = time.Now()
	if !c.current.InputTime.IsZero() {
		c.current.FirstTokenLatency = c.current.FirstTokenTime.Sub(c.current.InputTime)
	}
}

// MarkSynthesis records when synthesized audio was handed to playback.
func (c *Collector) MarkSynthesis() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.SynthesisTime = time.Now()
	if !c.current.InputTime.IsZero() {
		c.current.SynthesisLatency = c.current.SynthesisTime.Sub(c.current.InputTime)
	}
}

// MarkDone closes out the turn and archives it for averaging.
func (c *Collector) MarkDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.DoneTime = time.Now()
	if !c.current.InputTime.IsZero() {
		c.current.TotalLatency = c.current.DoneTime.Sub(c.current.InputTime)
	}
	c.history = append(c.history, c.current)
	if len(c.history) > historyCap {
		c.history = c.history[1:]
	}
}

// Current returns the in-flight turn's metrics.
func (c *Collector) Current() TurnMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Average returns mean latencies over the archived turns.
func (c *Collector) Average() TurnMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.history) == 0 {
		return TurnMetrics{}
	}

	var avg TurnMetrics
	for _, h := range c.history {
		avg.TranscribeLatency += h.TranscribeLatency
		avg.FirstTokenLatency += h.FirstTokenLatency
		avg.SynthesisLatency += h.SynthesisLatency
		avg.TotalLatency += h.TotalLatency
		avg.Tokens += h.Tokens
	}

	n := time.Duration(len(c.history))
	avg.TranscribeLatency /= n
	avg.FirstTokenLatency /= n
	avg.SynthesisLatency /= n
	avg.TotalLatency /= n
	avg.Tokens /= len(c.history)

	return avg
}

// Turns returns how many completed turns have been archived.
func (c *Collector) Turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}
