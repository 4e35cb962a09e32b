package discovery

// State is a node of the discovery workflow.
type State string

const (
	StateParse    State = "PARSE"
	StateExplore  State = "EXPLORE"
	StateEvaluate State = "EVALUATE"
	StateAdjust   State = "ADJUST"
	StateRetry    State = "RETRY"
	StateReport   State = "REPORT"
	StateEnd      State = "END"
)

// Status is the terminal outcome of a session.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusFailed         Status = "failed"
	StatusRetryExhausted Status = "retry-exhausted"
	StatusNoCandidates   Status = "no-candidates"
	StatusIncomplete     Status = "incomplete"
)

// Step is the input of a transition: what the stage just produced.
type Step struct {
	Candidates int
	Feedback   Feedback
	Retries    int
}

// Transition is the pure workflow table. The returned status is set only
// when the next state is REPORT.
func Transition(from State, step Step, retry RetryController) (State, Status) {
	switch from {
	case StateParse:
		return StateExplore, ""
	case StateExplore:
		if step.Candidates == 0 {
			return StateReport, StatusNoCandidates
		}
		return StateEvaluate, ""
	case StateEvaluate:
		if step.Feedback == FeedbackAccept {
			return StateReport, StatusSuccess
		}
		if retry.ShouldRetry(step.Retries) {
			return StateAdjust, ""
		}
		return StateReport, StatusFailed
	case StateAdjust:
		return StateRetry, ""
	case StateRetry:
		return StateParse, ""
	default:
		return StateEnd, ""
	}
}
