package protocol

// Stage is the step of the qualification flow a session is in.
type Stage string

const (
	StageAskName         Stage = "ask_name"
	StageAskPain         Stage = "ask_pain"
	StageConfirmInterest Stage = "confirm_interest"
	StageChooseTime      Stage = "choose_time"
	StageCollectEmail    Stage = "collect_email"
	StageDone            Stage = "done"
)

var stageOrder = []Stage{
	StageAskName,
	StageAskPain,
	StageConfirmInterest,
	StageChooseTime,
	StageCollectEmail,
	StageDone,
}

// Stages returns the stages in flow order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStage maps a stored value to a Stage. Anything unknown, including
// the empty string, restarts the flow at StageAskName.
func ParseStage(s string) Stage {
	st := Stage(s)
	if st.Valid() {
		return st
	}
	return StageAskName
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	return s.index() >= 0
}

// Next returns the stage that follows s. StageDone is terminal.
func (s Stage) Next() Stage {
	i := s.index()
	if i < 0 {
		return StageAskName
	}
	if i+1 >= len(stageOrder) {
		return StageDone
	}
	return stageOrder[i+1]
}

// Before reports whether s comes strictly earlier than other in the flow.
func (s Stage) Before(other Stage) bool {
	return s.index() < other.index()
}

func (s Stage) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}
