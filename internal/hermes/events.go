package hermes

import "time"

// NATS subjects for the question/answer flow.
const (
	SubjectQuestionAsked  = "twin.question.asked"
	SubjectAnswerProduced = "twin.answer.produced"
)

// QuestionEvent asks the twin a question over NATS. RequestID is echoed on
// the answer so callers can correlate.
type QuestionEvent struct {
	RequestID string `json:"request_id"`
	Question  string `json:"question"`
}

// AnswerEvent is published for every answered or refused question.
type AnswerEvent struct {
	AnswerID        string    `json:"answer_id"`
	RequestID       string    `json:"request_id,omitempty"`
	Question        string    `json:"question"`
	Mode            string    `json:"mode"`
	Refused         bool      `json:"refused"`
	Answer          string    `json:"answer"`
	Citations       []string  `json:"citations"`
	Confidence      string    `json:"confidence"`
	Reason          string    `json:"reason"`
	SnapshotVersion string    `json:"snapshot_version"`
	AnsweredAt      time.Time `json:"answered_at"`
}
