package model

import (
	"encoding/json"
	"errors"
)

// Answer is a student's response to one question. The set of implementations
// is closed: ChoiceAnswer and NumericAnswer.
type Answer interface {
	isAnswer()
}

// ChoiceAnswer is the selected option index of an mcq or output question.
type ChoiceAnswer int

// NumericAnswer is the value typed for an integer question.
type NumericAnswer int64

func (ChoiceAnswer) isAnswer()  {}
func (NumericAnswer) isAnswer() {}

// ErrEmptyAnswer is returned when an AnswerValue carries neither field.
var ErrEmptyAnswer = errors.New("answer must carry an option or a value")

// AnswerValue is the JSON form of an Answer: exactly one of Option or Value.
type AnswerValue struct {
	Option *int   `json:"option,omitempty"`
	Value  *int64 `json:"value,omitempty"`
}

// Decode turns the wire form into an Answer.
func (v AnswerValue) Decode() (Answer, error) {
	switch {
	case v.Option != nil && v.Value == nil:
		return ChoiceAnswer(*v.Option), nil
	case v.Value != nil && v.Option == nil:
		return NumericAnswer(*v.Value), nil
	}
	return nil, ErrEmptyAnswer
}

// EncodeAnswer returns the wire form of a. A nil answer encodes to nil.
func EncodeAnswer(a Answer) *AnswerValue {
	switch v := a.(type) {
	case ChoiceAnswer:
		n := int(v)
		return &AnswerValue{Option: &n}
	case NumericAnswer:
		n := int64(v)
		return &AnswerValue{Value: &n}
	}
	return nil
}

// AnswerSheet maps question index to the recorded answer. Keys exist only
// for attempted questions.
type AnswerSheet map[int]Answer

// MarshalJSON encodes the sheet as {"<index>": {"option": n} | {"value": n}}.
func (s AnswerSheet) MarshalJSON() ([]byte, error) {
	out := make(map[int]*AnswerValue, len(s))
	for i, a := range s {
		if v := EncodeAnswer(a); v != nil {
			out[i] = v
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (s *AnswerSheet) UnmarshalJSON(data []byte) error {
	var in map[int]AnswerValue
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	sheet := make(AnswerSheet, len(in))
	for i, v := range in {
		a, err := v.Decode()
		if err != nil {
			return err
		}
		sheet[i] = a
	}
	*s = sheet
	return nil
}

// Clone returns a copy that shares no storage with s.
func (s AnswerSheet) Clone() AnswerSheet {
	out := make(AnswerSheet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
