package gate

// RefusalText is the fixed text of every refusal. Callers detect refusal by
// comparing against it, never by inspecting generated prose.
const RefusalText = "I do not see this in your data."

// Refusal reasons.
const (
	ReasonPolicy       = "out of policy scope."
	ReasonNoEvidence   = "no evidence retrieved."
	ReasonInsufficient = "insufficient independent evidence."
	ReasonContradicted = "evidence does not support the question."
	ReasonUnconfirmed  = "evidence does not explicitly confirm the answer."
	ReasonDeclined     = "answer generation found no support in the evidence."
)

// Verdict is the tri-state entailment judgment.
type Verdict string

const (
	VerdictYes     Verdict = "YES"
	VerdictNo      Verdict = "NO"
	VerdictUnknown Verdict = "UNKNOWN"
)

// Entailment is a verdict with the oracle's (or the fail-open rule's) reason.
// Failed marks an UNKNOWN produced by a failed call rather than by the oracle.
type Entailment struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason"`
	Failed  bool    `json:"failed,omitempty"`
}

type Confidence string

const (
	ConfidenceNone   Confidence = "NONE"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// AnswerResult is the terminal output of the pipeline.
type AnswerResult struct {
	Refused    bool        `json:"refused"`
	Text       string      `json:"text"`
	Citations  []string    `json:"citations"`
	Confidence Confidence  `json:"confidence"`
	Reason     string      `json:"reason"`
	QuoteOnly  bool        `json:"quote_only,omitempty"`
	Entailment *Entailment `json:"entailment,omitempty"`
	Path       []State     `json:"path,omitempty"`
}

// Refusal builds a refusal with the given reason.
func Refusal(reason string) AnswerResult {
	return AnswerResult{
		Refused:    true,
		Text:       RefusalText,
		Citations:  []string{},
		Confidence: ConfidenceNone,
		Reason:     reason,
	}
}

// Unavailable is the refusal reason for a pipeline stage whose oracle failed.
func Unavailable(stage string) string {
	return stage + " unavailable."
}
