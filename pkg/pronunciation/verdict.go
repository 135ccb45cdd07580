package pronunciation

// FeedbackKind identifies the feedback message attached to a [Verdict].
type FeedbackKind int

const (
	FeedbackNoSpeech FeedbackKind = iota
	FeedbackPerfect
	FeedbackCorrect
	FeedbackHomophoneRightTone
	FeedbackTonesOff
	FeedbackPerfectTones
	FeedbackToneApproximate
	FeedbackToneRejected
	FeedbackVeryGood
	FeedbackClose
	FeedbackTryAgain
)

var feedbackNames = [...]string{
	FeedbackNoSpeech:           "no_speech",
	FeedbackPerfect:            "perfect",
	FeedbackCorrect:            "correct",
	FeedbackHomophoneRightTone: "homophone_right_tone",
	FeedbackTonesOff:           "tones_off",
	FeedbackPerfectTones:       "perfect_tones",
	FeedbackToneApproximate:    "tone_approximate",
	FeedbackToneRejected:       "tone_rejected",
	FeedbackVeryGood:           "very_good",
	FeedbackClose:              "close",
	FeedbackTryAgain:           "try_again",
}

var feedbackMessages = [...]string{
	FeedbackNoSpeech:           "No sound detected",
	FeedbackPerfect:            "Perfect!",
	FeedbackCorrect:            "Correct!",
	FeedbackHomophoneRightTone: "Right tone, check the character!",
	FeedbackTonesOff:           "Tones likely off!",
	FeedbackPerfectTones:       "Excellent, perfect tones!",
	FeedbackToneApproximate:    "Good! Watch the tones.",
	FeedbackToneRejected:       "Almost! Check the tones.",
	FeedbackVeryGood:           "Very good!",
	FeedbackClose:              "Close, try again.",
	FeedbackTryAgain:           "Try again.",
}

// String returns a stable snake_case identifier for k.
func (k FeedbackKind) String() string {
	if k < 0 || int(k) >= len(feedbackNames) {
		return "unknown"
	}
	return feedbackNames[k]
}

// Message returns the learner-facing message for k.
func (k FeedbackKind) Message() string {
	if k < 0 || int(k) >= len(feedbackMessages) {
		return ""
	}
	return feedbackMessages[k]
}

// Stage names the matcher stage that produced a verdict.
type Stage int

const (
	StageEmpty Stage = iota
	StageExact
	StageAlternative
	StageNumeral
	StageHomophone
	StageRomanized
	StageFuzzy
)

// String returns the stage name used in logs and metric attributes.
func (s Stage) String() string {
	switch s {
	case StageEmpty:
		return "empty"
	case StageExact:
		return "exact"
	case StageAlternative:
		return "alternative"
	case StageNumeral:
		return "numeral"
	case StageHomophone:
		return "homophone"
	case StageRomanized:
		return "romanized"
	case StageFuzzy:
		return "fuzzy"
	default:
		return "unknown"
	}
}

// Verdict is the graded outcome of one attempt.
type Verdict struct {
	// IsCorrect reports whether the attempt counts as pronounced correctly.
	IsCorrect bool

	// Accuracy is a score in [0, 1].
	Accuracy float64

	// Feedback selects the message shown to the learner.
	Feedback FeedbackKind

	// Stage is the matcher stage that decided the verdict.
	Stage Stage
}
