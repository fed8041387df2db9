package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/repository"
)

// SubjectService serves the read-only subject and set catalog.
type SubjectService struct {
	subjectRepo *repository.SubjectRepository
	log         zerolog.Logger
}

func NewSubjectService(subjectRepo *repository.SubjectRepository, log zerolog.Logger) *SubjectService {
	return &SubjectService{
		subjectRepo: subjectRepo,
		log:         log.With().Str("component", "subject_service").Logger(),
	}
}

// Catalog lists every subject with its sets.
func (s *SubjectService) Catalog(ctx context.Context) ([]model.CatalogEntry, error) {
	subjects, err := s.subjectRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	sets, err := s.subjectRepo.ListSets(ctx)
	if err != nil {
		return nil, err
	}
	return BuildCatalog(subjects, sets), nil
}

// BuildCatalog groups sets under their subjects, keeping the input order.
// Sets whose subject is not listed are dropped.
func BuildCatalog(subjects []model.Subject, sets []model.QuestionSet) []model.CatalogEntry {
	idx := make(map[uuid.UUID]int, len(subjects))
	out := make([]model.CatalogEntry, len(subjects))
	for i, sub := range subjects {
		idx[sub.ID] = i
		out[i] = model.CatalogEntry{Subject: sub, Sets: []model.QuestionSet{}}
	}
	for _, set := range sets {
		if i, ok := idx[set.SubjectID]; ok {
			out[i].Sets = append(out[i].Sets, set)
		}
	}
	return out
}
