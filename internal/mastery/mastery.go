// Package mastery implements the bounded memory-score model that drives
// long-term spaced repetition. The score is a clamped integer in
// [MinScore, MaxScore]; an item is mastered once its score reaches
// [Threshold]. The transition rules reward first-try correctness more than
// recovery after a miss, so true mastery requires demonstrating correctness
// after having struggled.
package mastery

const (
	// MinScore is the lower clamp of the memory score.
	MinScore = -3

	// MaxScore is the upper clamp of the memory score.
	MaxScore = 3

	// Threshold is the score at which an item counts as mastered.
	Threshold = 3

	// firstTryGain is awarded for a correct answer on an item that has never
	// been missed, neither this session nor historically.
	firstTryGain = 2

	// recoveryGain is awarded for a correct answer on an item that has been
	// missed before.
	recoveryGain = 1

	// missPenalty is applied for any incorrect answer.
	missPenalty = 1
)

// Mastered reports whether score is at or above the mastery threshold.
func Mastered(score int) bool { return score >= Threshold }

// NextScore computes the score transition for one answer.
//
// missedThisSession is true when the item was already answered wrong in the
// current session; missedEver is true when the item's historical record
// carries at least one wrong answer. masteredNow fires exactly when the
// transition crosses the threshold (next ≥ Threshold while current was
// below): a score that is already mastered and re-answered correctly does
// not fire again.
func NextScore(current int, missedThisSession, missedEver, correct bool) (next int, masteredNow bool) {
	if correct {
		gain := firstTryGain
		if missedThisSession || missedEver {
			gain = recoveryGain
		}
		next = current + gain
	} else {
		next = current - missPenalty
	}

	next = clamp(next)
	masteredNow = next >= Threshold && current < Threshold
	return next, masteredNow
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
