package model

import (
	"time"

	"github.com/google/uuid"
)

// Subject is a topic questions are grouped under. Subjects are managed
// outside this service and are read-only here.
type Subject struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestionSet is a named, ordered subset of a subject's questions.
type QuestionSet struct {
	ID        uuid.UUID `json:"id"`
	SubjectID uuid.UUID `json:"subject_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PaperRef selects the questions of an attempt: a whole subject, or one set
// when SetID is present.
type PaperRef struct {
	SubjectID uuid.UUID  `json:"subject_id"`
	SetID     *uuid.UUID `json:"set_id,omitempty"`
}

// Key returns a stable identifier used for cache keys and channels.
func (p PaperRef) Key() string {
	if p.SetID != nil {
		return "set:" + p.SetID.String()
	}
	return "subject:" + p.SubjectID.String()
}

// Paper is the provider's answer to a fetch: display names plus the
// sanitized questions, in attempt order.
type Paper struct {
	Ref             PaperRef          `json:"ref"`
	SubjectName     string            `json:"subject_name"`
	SetName         string            `json:"set_name,omitempty"`
	DurationSeconds int               `json:"duration_seconds"`
	Questions       []StudentQuestion `json:"questions"`
}

// DisplayName is the set name when present, else the subject name.
func (p *Paper) DisplayName() string {
	if p.SetName != "" {
		return p.SetName
	}
	return p.SubjectName
}

// PaperQuery is the query string accepted by the question fetch endpoint.
// At least one of the two ids must be present.
type PaperQuery struct {
	SubjectID string `form:"subject_id" binding:"omitempty,uuid"`
	SetID     string `form:"set_id" binding:"omitempty,uuid"`
}

// Ref converts the query into a PaperRef. It reports false when neither id
// is given. A set without a subject is resolved by the provider.
func (q PaperQuery) Ref() (PaperRef, bool) {
	var ref PaperRef
	if q.SubjectID == "" && q.SetID == "" {
		return ref, false
	}
	if q.SubjectID != "" {
		id, err := uuid.Parse(q.SubjectID)
		if err != nil {
			return ref, false
		}
		ref.SubjectID = id
	}
	if q.SetID != "" {
		id, err := uuid.Parse(q.SetID)
		if err != nil {
			return ref, false
		}
		ref.SetID = &id
	}
	return ref, true
}

// CatalogEntry is a subject with the sets it contains, as listed to
// students choosing a paper.
type CatalogEntry struct {
	Subject
	Sets []QuestionSet `json:"sets"`
}
