package facematch

// Outcome is the result of the threshold/ambiguity decision.
type Outcome string

const (
	OutcomeNoCandidates      Outcome = "no-candidates"
	OutcomeNotRecognized     Outcome = "not-recognized"
	OutcomeAmbiguous         Outcome = "ambiguous"
	OutcomeProvisionalAccept Outcome = "provisional-accept"
)

// Thresholds are the tunable decision parameters.
type Thresholds struct {
	// Accept is the maximum mean distance for the best candidate.
	Accept float64
	// AmbiguityDelta is the minimum gap between the best candidate and the
	// runner-up.
	AmbiguityDelta float64
}

type Decision struct {
	Outcome Outcome
	Best    MatchCandidate
	// RunnerUp is nil when the pool had a single entry.
	RunnerUp *MatchCandidate
	// Gap is RunnerUp.Distance - Best.Distance, zero without a runner-up.
	Gap float64
}

// Accepted reports whether the decision allows moving on to re-verification.
func (d Decision) Accepted() bool {
	return d.Outcome == OutcomeProvisionalAccept
}

// Decide applies the threshold and ambiguity rules to scores, which must be
// sorted ascending (as returned by Score).
//
// A best candidate over the accept threshold is NotRecognized regardless of
// the runner-up. The ambiguity rule only applies when a runner-up exists.
// Both comparisons are written so that a NaN distance or gap never passes.
func Decide(scores []MatchCandidate, th Thresholds) Decision {
	if len(scores) == 0 {
		return Decision{Outcome: OutcomeNoCandidates}
	}

	dec := Decision{Best: scores[0]}
	if len(scores) > 1 {
		runnerUp := scores[1]
		dec.RunnerUp = &runnerUp
		dec.Gap = runnerUp.Distance - dec.Best.Distance
	}

	switch {
	case !(dec.Best.Distance <= th.Accept):
		dec.Outcome = OutcomeNotRecognized
	case dec.RunnerUp != nil && !(dec.Gap >= th.AmbiguityDelta):
		dec.Outcome = OutcomeAmbiguous
	default:
		dec.Outcome = OutcomeProvisionalAccept
	}
	return dec
}
