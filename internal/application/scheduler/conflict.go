package scheduler

import (
	"time"

	"github.com/clipcast/engine/internal/domain"
)

// ConflictOutcome is the result of resolving one candidate slot against the
// partition's existing non-terminal logs (spec.md §4.1).
type ConflictOutcome struct {
	CandidateSlot time.Time
	// Shifted holds existing logs whose scheduled_for must move as part of
	// conflict resolution (only populated when the candidate wins).
	Shifted []ShiftedLog
	// DetectedAny reports whether any conflict was found at all, so the
	// caller knows whether to emit schedule_conflict_detected.
	DetectedAny bool
}

// ShiftedLog pairs an existing log with its new slot.
type ShiftedLog struct {
	Log     *domain.PublishLog
	NewSlot time.Time
}

func withinGap(a, b time.Time, minGap time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < minGap
}

// conflictsAt returns the non-terminal logs within minGap of slot.
func conflictsAt(slot time.Time, minGap time.Duration, logs []*domain.PublishLog) []*domain.PublishLog {
	var out []*domain.PublishLog
	for _, l := range logs {
		if l.Status().IsTerminal() {
			continue
		}
		sf := l.ScheduledFor()
		if sf == nil {
			continue
		}
		if withinGap(*sf, slot, minGap) {
			out = append(out, l)
		}
	}
	return out
}

// Resolve implements spec.md §4.1's conflict-resolution rule: compare
// priority against each conflicting log (absent priority treated as 0);
// the higher-priority record keeps the slot and bumps the loser to the next
// free slot after slot+min_gap; ties preserve the existing record and shift
// the new one. The search and shift are iterated until the candidate slot
// (or its final resting place) has no remaining conflicts, so the
// per-partition min_gap contract holds even when displacing one log
// uncovers a further downstream conflict.
func Resolve(oracle *Oracle, window domain.PlatformWindow, candidateSlot time.Time, candidatePriority float64, existing []*domain.PublishLog, now time.Time) (ConflictOutcome, error) {
	minGap := time.Duration(window.MinGapMinutes) * time.Minute
	outcome := ConflictOutcome{CandidateSlot: candidateSlot}

	remaining := make([]*domain.PublishLog, len(existing))
	copy(remaining, existing)

	slot := candidateSlot
	const maxIterations = 64
	for i := 0; i < maxIterations; i++ {
		conflicts := conflictsAt(slot, minGap, remaining)
		if len(conflicts) == 0 {
			break
		}
		outcome.DetectedAny = true

		conflict := conflicts[0]
		conflictPriority := conflict.Priority()

		if candidatePriority > conflictPriority {
			// We win the slot; the conflicting log must move.
			newSlot, err := oracle.nextAvailableSlot(window, slot, now)
			if err != nil {
				return outcome, err
			}
			outcome.Shifted = append(outcome.Shifted, ShiftedLog{Log: conflict, NewSlot: newSlot})
			remaining = removeLog(remaining, conflict)
		} else {
			// Ties and strict losses both shift the candidate, not the
			// existing record (spec.md §4.1: "ties: preserve existing").
			newSlot, err := oracle.nextAvailableSlot(window, slot, now)
			if err != nil {
				return outcome, err
			}
			slot = newSlot
		}
	}

	outcome.CandidateSlot = slot
	return outcome, nil
}

func removeLog(logs []*domain.PublishLog, target *domain.PublishLog) []*domain.PublishLog {
	out := logs[:0]
	for _, l := range logs {
		if l != target {
			out = append(out, l)
		}
	}
	return out
}
