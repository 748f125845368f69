// Package progress computes a task's aggregate progress from the state of
// its subtasks and the latest executor callback.
//
// Executors report coarse or absent progress, so the calculator produces
// visible, never-decreasing motion for the UI without claiming completion
// before a terminal callback arrives. The constants (99 running cap, 90
// pseudo-increment cap for a single subtask) match the observed behavior of
// the executor protocol and must not be "simplified".
package progress

import "github.com/taskhive/taskhive/internal/model"

// Input is everything the calculator needs for one recomputation.
type Input struct {
	// TotalSubtasks is the number of assistant subtasks in the task.
	TotalSubtasks int
	// CompletedSubtasks is how many of them reached a terminal status.
	CompletedSubtasks int
	// RunningProgress is the fractional 0-100 progress reported by the
	// executor for the currently running subtask, 0 when absent.
	RunningProgress int
	// PreviousProgress is the task's last persisted progress.
	PreviousProgress int
	// Status is the task status after applying the callback.
	Status model.TaskStatus
}

// Calculate returns the new aggregate progress in [0, 100].
func Calculate(in Input) int {
	// Terminal states converge on 100 unconditionally.
	if in.Status.Terminal() {
		return 100
	}

	total := in.TotalSubtasks
	if total <= 0 {
		total = 1
	}

	if in.RunningProgress > 0 {
		// Fractional signal: completed steps plus the running fraction.
		raw := (in.CompletedSubtasks*100 + in.RunningProgress) / total
		if raw > 99 {
			raw = 99
		}
		if raw < in.PreviousProgress {
			return in.PreviousProgress
		}
		return raw
	}

	// No fractional signal: pseudo-increment so the UI keeps moving.
	candidate := in.PreviousProgress + 1
	if candidate >= 100 {
		// Cap pseudo progress well below completion. For a single
		// subtask this is the 90% ceiling.
		ceiling := 90 / total
		if candidate > ceiling {
			candidate = ceiling
		}
	}
	if candidate > 99 {
		candidate = 99
	}
	if candidate < in.PreviousProgress {
		return in.PreviousProgress
	}
	return candidate
}
