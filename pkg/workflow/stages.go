// Package workflow tracks the per-turn pipeline stages (speech-to-text,
// model, speech synthesis) as pure value transforms. Every operation
// returns a fresh slice; nothing here does I/O or holds state, so stage
// sets can be handed across goroutine boundaries without torn reads.
package workflow

import "time"

// StageID identifies a pipeline phase.
type StageID string

const (
	StageSTT   StageID = "stt"
	StageModel StageID = "model"
	StageTTS   StageID = "tts"
)

// Status is the lifecycle state of a stage.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Stage is one named phase of a turn's pipeline.
type Stage struct {
	ID     StageID `json:"id"`
	Label  string  `json:"label"`
	Status Status  `json:"status"`

	StartedAt  time.Time `json:"started_at,omitzero"`
	DurationMs int64     `json:"duration_ms,omitempty"`
}

// Terminal reports whether the stage has finished.
func (s Stage) Terminal() bool {
	return s.Status == StatusSuccess || s.Status == StatusError
}

// New returns the initial stage set for a turn, all pending, in fixed
// order. The stt stage is present only for voice input; the tts stage
// only when voice output is enabled.
func New(includeSTT, includeTTS bool) []Stage {
	stages := make([]Stage, 0, 3)
	if includeSTT {
		stages = append(stages, Stage{ID: StageSTT, Label: "Transcribing", Status: StatusPending})
	}
	stages = append(stages, Stage{ID: StageModel, Label: "Generating", Status: StatusPending})
	if includeTTS {
		stages = append(stages, Stage{ID: StageTTS, Label: "Speaking", Status: StatusPending})
	}
	return stages
}

// Start marks the matching stage running and records its start time.
// Unknown IDs return the input unchanged; a stage may have been
// legitimately omitted from this turn.
func Start(stages []Stage, id StageID) []Stage {
	out := clone(stages)
	for i := range out {
		if out[i].ID == id {
			out[i].Status = StatusRunning
			out[i].StartedAt = time.Now()
		}
	}
	return out
}

// Complete marks the matching stage with a final status and its
// duration. Duration is now minus the recorded start, floored at zero;
// a stage that never started completes with duration 0. A stage already
// marked success keeps its status and duration.
func Complete(stages []Stage, id StageID, status Status) []Stage {
	out := clone(stages)
	for i := range out {
		if out[i].ID != id {
			continue
		}
		if out[i].Status == StatusSuccess {
			continue
		}
		out[i].Status = status
		if out[i].DurationMs == 0 && !out[i].StartedAt.IsZero() {
			ms := time.Since(out[i].StartedAt).Milliseconds()
			if ms < 0 {
				ms = 0
			}
			out[i].DurationMs = ms
		}
	}
	return out
}

// Remove drops a stage entirely, for when a phase becomes inapplicable
// mid-turn (e.g. voice disabled after the pipeline began).
func Remove(stages []Stage, id StageID) []Stage {
	out := make([]Stage, 0, len(stages))
	for _, s := range stages {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

// Sanitize strips stages still pending, producing the snapshot persisted
// into message metadata. A stage that never ran is not a pipeline step.
func Sanitize(stages []Stage) []Stage {
	out := make([]Stage, 0, len(stages))
	for _, s := range stages {
		if s.Status != StatusPending {
			out = append(out, s)
		}
	}
	return out
}

func clone(stages []Stage) []Stage {
	return append([]Stage(nil), stages...)
}
