package model

// Job status
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
	StatusCancelled  JobStatus = "CANCELLED"
)

// Job phase distinguishes which activity PROCESSING refers to, since a
// COMPLETED job re-enters PROCESSING for a minutes pass.
type JobPhase string

const (
	PhaseTranscription JobPhase = "transcription"
	PhaseMinutes       JobPhase = "minutes"
)

// Tone selects the minutes prompt template.
type Tone string

const (
	ToneFormal Tone = "FORMAL"
	ToneBrief  Tone = "BRIEF"
)

var ValidTones = []Tone{ToneFormal, ToneBrief}

// Valid reports whether the tone is a known variant.
func (t Tone) Valid() bool {
	for _, v := range ValidTones {
		if t == v {
			return true
		}
	}
	return false
}

// Minutes prompt templates, one per tone. The transcript and meeting metadata
// are supplied as a separate content part.
const (
	formalMinutesInstruction = "You are an elite meeting secretary. Produce formal meeting minutes " +
		"from the transcript with exactly these numbered sections: 1. Purpose 2. Discussion " +
		"3. Decisions (as a table) 4. Miscellaneous. Preserve the transcript's language."
	briefMinutesInstruction = "You are a meeting secretary. Produce brief, action-oriented minutes " +
		"from the transcript: key points and action items only, as short bullet lists. " +
		"Preserve the transcript's language."
)

// Instruction returns the fixed prompt template for the tone. The switch is
// exhaustive over ValidTones; unknown tones report false.
func (t Tone) Instruction() (string, bool) {
	switch t {
	case ToneFormal:
		return formalMinutesInstruction, true
	case ToneBrief:
		return briefMinutesInstruction, true
	default:
		return "", false
	}
}
