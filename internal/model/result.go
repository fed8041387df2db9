package model

import (
	"time"

	"github.com/google/uuid"
)

// ScoreResult is computed once when an attempt is submitted and never
// recomputed afterwards.
type ScoreResult struct {
	Total            int     `json:"total"`
	Attempted        int     `json:"attempted"`
	Unattempted      int     `json:"unattempted"`
	Correct          int     `json:"correct"`
	Wrong            int     `json:"wrong"`
	Score            float64 `json:"score"`
	MaxScore         float64 `json:"max_score"`
	Percentage       float64 `json:"percentage"`
	TimeTakenSeconds int     `json:"time_taken_seconds"`
	Pass             bool    `json:"pass"`
}

// ReviewStatus classifies one answered question after grading.
type ReviewStatus string

const (
	ReviewCorrect     ReviewStatus = "correct"
	ReviewWrong       ReviewStatus = "wrong"
	ReviewUnattempted ReviewStatus = "unattempted"
)

// ReviewItem pairs a question with the student's answer and the key. It is
// only built for submitted attempts.
type ReviewItem struct {
	Index       int             `json:"index"`
	Question    StudentQuestion `json:"question"`
	Selected    *AnswerValue    `json:"selected,omitempty"`
	Correct     *AnswerValue    `json:"correct"`
	Status      ReviewStatus    `json:"status"`
	Explanation string          `json:"explanation,omitempty"`
}

// Review is what the presentation layer renders after submission.
type Review struct {
	AttemptID   uuid.UUID    `json:"attempt_id"`
	SubjectName string       `json:"subject_name"`
	Trigger     Trigger      `json:"trigger"`
	Result      ScoreResult  `json:"result"`
	Items       []ReviewItem `json:"items"`
}

// Submission is the frozen record of a finished attempt. It is handed to
// persistence and delivery exactly once per attempt.
type Submission struct {
	AttemptID   uuid.UUID   `json:"attempt_id"`
	UserID      int         `json:"user_id"`
	UserName    string      `json:"user_name"`
	Email       string      `json:"email"`
	Paper       PaperRef    `json:"paper"`
	SubjectName string      `json:"subject_name"`
	Trigger     Trigger     `json:"trigger"`
	Result      ScoreResult `json:"result"`
	Answers     AnswerSheet `json:"answers"`
	QuestionIDs []uuid.UUID `json:"question_ids"`
	Violations  int         `json:"violations"`
	StartedAt   time.Time   `json:"started_at"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// DeliveryJob asks the delivery worker to email a result report.
type DeliveryJob struct {
	Submission Submission   `json:"submission"`
	Items      []ReviewItem `json:"items"`
	Attempt    int          `json:"attempt"`
}

// SubmitResultRequest is posted by clients that ran the attempt locally.
// The server re-grades the answers against its own key; the client's
// totals are only compared and logged.
type SubmitResultRequest struct {
	AttemptID    uuid.UUID   `json:"attempt_id" binding:"required"`
	SubjectID    uuid.UUID   `json:"subject_id" binding:"required"`
	SetID        *uuid.UUID  `json:"set_id"`
	SubjectName  string      `json:"subject_name" binding:"required,max=200"`
	QuestionIDs  []uuid.UUID `json:"questions" binding:"required,min=1,max=500"`
	Answers      AnswerSheet `json:"answers"`
	Total        int         `json:"total" binding:"min=0"`
	Attempted    int         `json:"attempted" binding:"min=0"`
	Correct      int         `json:"correct" binding:"min=0"`
	Wrong        int         `json:"wrong" binding:"min=0"`
	Score        float64     `json:"score"`
	Percentage   float64     `json:"percentage"`
	TimeTakenSec int         `json:"time_taken_sec" binding:"min=0"`
	Trigger      Trigger     `json:"trigger" binding:"omitempty,trigger"`
	Violations   int         `json:"violations" binding:"min=0"`
}

// ResultSummary is one row of a result listing.
type ResultSummary struct {
	AttemptID   uuid.UUID  `json:"attempt_id"`
	UserID      int        `json:"user_id"`
	UserName    string     `json:"user_name"`
	SubjectID   uuid.UUID  `json:"subject_id"`
	SetID       *uuid.UUID `json:"set_id,omitempty"`
	SubjectName string     `json:"subject_name"`
	Trigger     Trigger    `json:"trigger"`
	Score       float64    `json:"score"`
	MaxScore    float64    `json:"max_score"`
	Percentage  float64    `json:"percentage"`
	Attempted   int        `json:"attempted"`
	Correct     int        `json:"correct"`
	Wrong       int        `json:"wrong"`
	Unattempted int        `json:"unattempted"`
	Total       int        `json:"total"`
	Pass        bool       `json:"pass"`
	TimeTaken   int        `json:"time_taken_seconds"`
	Violations  int        `json:"violations"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

// ScoreResult returns the stored grade in the form produced at submission.
func (s *ResultSummary) ScoreResult() ScoreResult {
	return ScoreResult{
		Total:            s.Total,
		Attempted:        s.Attempted,
		Unattempted:      s.Unattempted,
		Correct:          s.Correct,
		Wrong:            s.Wrong,
		Score:            s.Score,
		MaxScore:         s.MaxScore,
		Percentage:       s.Percentage,
		TimeTakenSeconds: s.TimeTaken,
		Pass:             s.Pass,
	}
}

// ResultFilter narrows a result listing.
type ResultFilter struct {
	SubjectID *uuid.UUID
	SetID     *uuid.UUID
	UserID    *int
	Passed    *bool
}

// ResultDetail is a stored result together with what is needed to rebuild
// its review.
type ResultDetail struct {
	ResultSummary
	Answers     AnswerSheet `json:"answers"`
	QuestionIDs []uuid.UUID `json:"question_ids"`
	StartedAt   time.Time   `json:"started_at"`
}
