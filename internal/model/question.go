package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QuestionType identifies the variant carried by a Question.
type QuestionType string

const (
	QuestionTypeMCQ     QuestionType = "mcq"
	QuestionTypeOutput  QuestionType = "output"
	QuestionTypeInteger QuestionType = "integer"
)

// OptionCount is the fixed number of options on choice-style questions.
const OptionCount = 4

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMCQ, QuestionTypeOutput, QuestionTypeInteger:
		return true
	}
	return false
}

// CodeSnippet is the program shown with an "output" question.
type CodeSnippet struct {
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

// Body is the type-specific part of a question. The set of implementations
// is closed: ChoiceBody, OutputBody and IntegerBody.
type Body interface {
	Type() QuestionType
	key() Answer
	validate() error
}

// ChoiceBody is a single-answer multiple choice question.
type ChoiceBody struct {
	Options []string
	Answer  int
}

// OutputBody asks for the output of a code snippet, answered by choosing
// one of four options.
type OutputBody struct {
	Code    CodeSnippet
	Options []string
	Answer  int
}

// IntegerBody expects a whole-number answer typed by the student.
type IntegerBody struct {
	Answer int64
}

func (ChoiceBody) Type() QuestionType  { return QuestionTypeMCQ }
func (OutputBody) Type() QuestionType  { return QuestionTypeOutput }
func (IntegerBody) Type() QuestionType { return QuestionTypeInteger }

func (b ChoiceBody) key() Answer  { return ChoiceAnswer(b.Answer) }
func (b OutputBody) key() Answer  { return ChoiceAnswer(b.Answer) }
func (b IntegerBody) key() Answer { return NumericAnswer(b.Answer) }

func (b ChoiceBody) validate() error {
	return validateOptions(b.Options, b.Answer)
}

func (b OutputBody) validate() error {
	if strings.TrimSpace(b.Code.Content) == "" {
		return &QuestionError{Field: "code", Reason: "code content is required for output questions"}
	}
	return validateOptions(b.Options, b.Answer)
}

func (IntegerBody) validate() error { return nil }

func validateOptions(options []string, answer int) error {
	if len(options) != OptionCount {
		return &QuestionError{Field: "options", Reason: fmt.Sprintf("exactly %d options are required", OptionCount)}
	}
	for _, o := range options {
		if strings.TrimSpace(o) == "" {
			return &QuestionError{Field: "options", Reason: "options must not be empty"}
		}
	}
	if answer < 0 || answer >= OptionCount {
		return &QuestionError{Field: "answer", Reason: fmt.Sprintf("answer must be an option index between 0 and %d", OptionCount-1)}
	}
	return nil
}

// QuestionError describes why a question failed validation.
type QuestionError struct {
	Field  string
	Reason string
}

func (e *QuestionError) Error() string {
	return e.Field + ": " + e.Reason
}

// Question is a stored question including its answer key. It never leaves
// the server before the owning attempt is submitted.
type Question struct {
	ID            uuid.UUID
	SubjectID     uuid.UUID
	SetID         *uuid.UUID
	Title         string
	Marks         float64
	NegativeMarks float64
	Explanation   string
	Position      int
	Body          Body
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Type returns the variant tag of the question.
func (q *Question) Type() QuestionType {
	if q.Body == nil {
		return ""
	}
	return q.Body.Type()
}

// Credit is the score awarded for a correct answer. Unset marks count as 1.
func (q *Question) Credit() float64 {
	if q.Marks <= 0 {
		return 1
	}
	return q.Marks
}

// CorrectAnswer returns the answer key for the question.
func (q *Question) CorrectAnswer() Answer {
	if q.Body == nil {
		return nil
	}
	return q.Body.key()
}

// Accepts reports whether a has the right shape for this question.
// Choice answers must be a valid option index; integer questions take
// numeric answers only.
func (q *Question) Accepts(a Answer) bool {
	switch q.Body.(type) {
	case ChoiceBody, OutputBody:
		c, ok := a.(ChoiceAnswer)
		return ok && int(c) >= 0 && int(c) < OptionCount
	case IntegerBody:
		_, ok := a.(NumericAnswer)
		return ok
	}
	return false
}

// Judge reports whether a matches the answer key.
func (q *Question) Judge(a Answer) bool {
	if a == nil || q.Body == nil {
		return false
	}
	return a == q.Body.key()
}

// Validate checks the common fields and the variant's own rules.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Title) == "" {
		return &QuestionError{Field: "title", Reason: "title is required"}
	}
	if q.SubjectID == uuid.Nil {
		return &QuestionError{Field: "subject_id", Reason: "subject is required"}
	}
	if q.Marks < 0 {
		return &QuestionError{Field: "marks", Reason: "marks must not be negative"}
	}
	if q.NegativeMarks < 0 {
		return &QuestionError{Field: "negative_marks", Reason: "negative marks must not be negative"}
	}
	if q.Body == nil {
		return &QuestionError{Field: "type", Reason: "question type is required"}
	}
	return q.Body.validate()
}

// Sanitize returns the student-facing copy without the answer key.
func (q *Question) Sanitize() StudentQuestion {
	sq := StudentQuestion{
		ID:       q.ID,
		Type:     q.Type(),
		Title:    q.Title,
		Marks:    q.Credit(),
		Position: q.Position,
	}
	switch b := q.Body.(type) {
	case ChoiceBody:
		sq.Options = append([]string(nil), b.Options...)
	case OutputBody:
		code := b.Code
		sq.Code = &code
		sq.Options = append([]string(nil), b.Options...)
	}
	return sq
}

// StudentQuestion is the sanitized copy of a Question served during an attempt.
type StudentQuestion struct {
	ID       uuid.UUID    `json:"id"`
	Type     QuestionType `json:"type"`
	Title    string       `json:"title"`
	Code     *CodeSnippet `json:"code,omitempty"`
	Options  []string     `json:"options,omitempty"`
	Marks    float64      `json:"marks"`
	Position int          `json:"position"`
}

// ─── Wire format ────────────────────────────────────────────────────

// questionJSON is the flat, type-tagged JSON form of a Question.
type questionJSON struct {
	ID            uuid.UUID       `json:"id"`
	SubjectID     uuid.UUID       `json:"subject_id"`
	SetID         *uuid.UUID      `json:"set_id,omitempty"`
	Type          QuestionType    `json:"type"`
	Title         string          `json:"title"`
	Code          *CodeSnippet    `json:"code,omitempty"`
	Options       []string        `json:"options,omitempty"`
	Answer        json.RawMessage `json:"answer"`
	Marks         float64         `json:"marks"`
	NegativeMarks float64         `json:"negative_marks"`
	Explanation   string          `json:"explanation,omitempty"`
	Position      int             `json:"position"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MarshalJSON encodes the question with a "type" discriminator.
func (q Question) MarshalJSON() ([]byte, error) {
	out := questionJSON{
		ID:            q.ID,
		SubjectID:     q.SubjectID,
		SetID:         q.SetID,
		Type:          q.Type(),
		Title:         q.Title,
		Marks:         q.Marks,
		NegativeMarks: q.NegativeMarks,
		Explanation:   q.Explanation,
		Position:      q.Position,
		CreatedAt:     q.CreatedAt,
		UpdatedAt:     q.UpdatedAt,
	}

	options, code, answer, err := EncodeBody(q.Body)
	if err != nil {
		return nil, err
	}
	out.Options, out.Code, out.Answer = options, code, answer
	return json.Marshal(out)
}

// EncodeBody splits b into the loose parts DecodeBody accepts.
func EncodeBody(b Body) (options []string, code *CodeSnippet, answer json.RawMessage, err error) {
	var key interface{}
	switch v := b.(type) {
	case ChoiceBody:
		options = v.Options
		key = v.Answer
	case OutputBody:
		snippet := v.Code
		code = &snippet
		options = v.Options
		key = v.Answer
	case IntegerBody:
		key = v.Answer
	}
	answer, err = json.Marshal(key)
	return options, code, answer, err
}

// UnmarshalJSON decodes a type-tagged question.
func (q *Question) UnmarshalJSON(data []byte) error {
	var in questionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	body, err := DecodeBody(in.Type, in.Options, in.Code, in.Answer)
	if err != nil {
		return err
	}

	*q = Question{
		ID:            in.ID,
		SubjectID:     in.SubjectID,
		SetID:         in.SetID,
		Title:         in.Title,
		Marks:         in.Marks,
		NegativeMarks: in.NegativeMarks,
		Explanation:   in.Explanation,
		Position:      in.Position,
		Body:          body,
		CreatedAt:     in.CreatedAt,
		UpdatedAt:     in.UpdatedAt,
	}
	return nil
}

// DecodeBody builds the variant for t from its loose parts. It is shared by
// the JSON codec, the database scanner and request binding.
func DecodeBody(t QuestionType, options []string, code *CodeSnippet, answer json.RawMessage) (Body, error) {
	switch t {
	case QuestionTypeMCQ:
		idx, err := decodeIndex(answer)
		if err != nil {
			return nil, err
		}
		return ChoiceBody{Options: options, Answer: idx}, nil
	case QuestionTypeOutput:
		idx, err := decodeIndex(answer)
		if err != nil {
			return nil, err
		}
		var snippet CodeSnippet
		if code != nil {
			snippet = *code
		}
		return OutputBody{Code: snippet, Options: options, Answer: idx}, nil
	case QuestionTypeInteger:
		var n int64
		if err := json.Unmarshal(answer, &n); err != nil {
			return nil, &QuestionError{Field: "answer", Reason: "answer must be a whole number"}
		}
		return IntegerBody{Answer: n}, nil
	}
	return nil, &QuestionError{Field: "type", Reason: fmt.Sprintf("unknown question type %q", t)}
}

func decodeIndex(raw json.RawMessage) (int, error) {
	var idx int
	if err := json.Unmarshal(raw, &idx); err != nil {
		return 0, &QuestionError{Field: "answer", Reason: "answer must be an option index"}
	}
	return idx, nil
}

// ─── Requests ───────────────────────────────────────────────────────

// QuestionRequest is the admin payload for creating or replacing a question.
type QuestionRequest struct {
	SubjectID     uuid.UUID       `json:"subject_id" binding:"required"`
	SetID         *uuid.UUID      `json:"set_id"`
	Type          QuestionType    `json:"type" binding:"required,question_type"`
	Title         string          `json:"title" binding:"required,min=1,max=2000"`
	Code          *CodeSnippet    `json:"code"`
	Options       []string        `json:"options" binding:"omitempty,dive,max=500"`
	Answer        json.RawMessage `json:"answer" binding:"required"`
	Marks         float64         `json:"marks" binding:"min=0"`
	NegativeMarks float64         `json:"negative_marks" binding:"min=0"`
	Explanation   string          `json:"explanation" binding:"max=4000"`
	Position      int             `json:"position" binding:"min=0"`
}

// ToQuestion converts the request into a validated Question.
func (r *QuestionRequest) ToQuestion() (*Question, error) {
	body, err := DecodeBody(r.Type, r.Options, r.Code, r.Answer)
	if err != nil {
		return nil, err
	}
	q := &Question{
		SubjectID:     r.SubjectID,
		SetID:         r.SetID,
		Title:         strings.TrimSpace(r.Title),
		Marks:         r.Marks,
		NegativeMarks: r.NegativeMarks,
		Explanation:   r.Explanation,
		Position:      r.Position,
		Body:          body,
	}
	if q.Marks == 0 {
		q.Marks = 1
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}
