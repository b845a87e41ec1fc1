package schedule

import "time"

// MinGap is the smallest allowed spacing between two scheduled instants.
const MinGap = time.Minute

// conflictStep is how far a conflicting candidate is pushed per retry.
const conflictStep = time.Minute

// ResolveConflicts returns the earliest instant at or after candidate that is
// at least MinGap away from every instant in existing. An empty set accepts
// the candidate unchanged; a conflict-free candidate is returned as-is.
// Terminates because each retry strictly advances the candidate past a finite
// set of occupied slots.
func ResolveConflicts(candidate time.Time, existing []time.Time) time.Time {
	for {
		clear := true
		for _, at := range existing {
			d := candidate.Sub(at)
			if d < 0 {
				d = -d
			}
			if d < MinGap {
				candidate = candidate.Add(conflictStep)
				clear = false
				break
			}
		}
		if clear {
			return candidate
		}
	}
}
