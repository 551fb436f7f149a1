// Package pipeline tracks per-stage status and weighted completion for the
// fixed data-generation pipeline. Everything here is pure: no clocks other
// than the injected timestamps, no I/O, no mutation of inputs.
package pipeline

import (
	"math"
	"time"

	"github.com/priyamshenoy/dataforge/pkg/models"
)

// The six base stages, in execution order. Weights sum to exactly 100.
var baseStages = []models.Stage{
	{Name: "initialization", Weight: 5},
	{Name: "data-processing", Weight: 15},
	{Name: "model-generation", Weight: 30},
	{Name: "data-generation", Weight: 35},
	{Name: "output-formatting", Weight: 10},
	{Name: "finalization", Weight: 5},
}

// extraStages holds zero-weight stages appended for specific data types.
// They never disturb the base sequence or its weight total.
var extraStages = map[string][]models.Stage{
	"timeseries": {{Name: "temporal-alignment", Weight: 0}},
	"relational": {{Name: "referential-checks", Weight: 0}},
}

// DefaultStages returns the ordered stage list for a new job, every stage
// pending at zero progress.
func DefaultStages(dataType string) []models.Stage {
	stages := make([]models.Stage, 0, len(baseStages)+1)
	for _, s := range baseStages {
		s.Status = models.StageStatusPending
		s.Progress = 0
		stages = append(stages, s)
	}
	for _, s := range extraStages[dataType] {
		s.Status = models.StageStatusPending
		s.Progress = 0
		stages = append(stages, s)
	}
	return stages
}

// CalculateProgress computes the weighted completion percentage, rounded to
// the nearest integer (ties to even). Completed stages contribute their full
// weight, running stages a proportional share, everything else zero. An
// empty list yields 0.
func CalculateProgress(stages []models.Stage) int {
	total := 0.0
	for _, s := range stages {
		switch s.Status {
		case models.StageStatusCompleted:
			total += float64(s.Weight)
		case models.StageStatusRunning:
			total += float64(s.Weight) * float64(s.Progress) / 100.0
		}
	}
	return int(math.RoundToEven(total))
}

// UpdateStageStatus returns a new stage list with the named stage updated.
// StartTime is stamped on the first entry to running, EndTime on the first
// entry to completed or failed; neither is ever overwritten. An unmatched
// name returns the input list unchanged.
func UpdateStageStatus(stages []models.Stage, name string, status models.StageStatus, progress int, now time.Time) []models.Stage {
	out := make([]models.Stage, len(stages))
	copy(out, stages)

	for i := range out {
		if out[i].Name != name {
			continue
		}
		out[i].Status = status
		if progress >= 0 {
			out[i].Progress = progress
		}
		if status == models.StageStatusCompleted {
			out[i].Progress = 100
		}
		if status == models.StageStatusRunning && out[i].StartTime == nil {
			t := now
			out[i].StartTime = &t
		}
		if (status == models.StageStatusCompleted || status == models.StageStatusFailed) && out[i].EndTime == nil {
			t := now
			out[i].EndTime = &t
		}
		break
	}
	return out
}

// NextPendingStage returns the first pending stage, but only when it is the
// first stage overall or its immediate predecessor has completed. Stages
// run strictly in order: a gap blocks progression even if a later stage is
// marked pending out of turn.
func NextPendingStage(stages []models.Stage) (models.Stage, bool) {
	for i, s := range stages {
		if s.Status != models.StageStatusPending {
			continue
		}
		if i == 0 || stages[i-1].Status == models.StageStatusCompleted {
			return s, true
		}
		return models.Stage{}, false
	}
	return models.Stage{}, false
}

// AllCompleted reports whether every stage has completed. Empty lists do
// not count as complete.
func AllCompleted(stages []models.Stage) bool {
	if len(stages) == 0 {
		return false
	}
	for _, s := range stages {
		if s.Status != models.StageStatusCompleted {
			return false
		}
	}
	return true
}

// AnyFailedOrCancelled reports whether any stage has failed or been
// cancelled.
func AnyFailedOrCancelled(stages []models.Stage) bool {
	for _, s := range stages {
		if s.Status == models.StageStatusFailed || s.Status == models.StageStatusCancelled {
			return true
		}
	}
	return false
}

// HasStage reports whether the list contains a stage with the given name.
func HasStage(stages []models.Stage, name string) bool {
	for _, s := range stages {
		if s.Name == name {
			return true
		}
	}
	return false
}
