package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/database"
	"github.com/smquiz/quiz-backend/internal/logger"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/repository"
	"github.com/smquiz/quiz-backend/internal/service"
	"golang.org/x/crypto/bcrypt"
)

// seedFile is the layout of a question seed file. Questions listed directly
// under a subject belong to no set.
type seedFile struct {
	Subjects []struct {
		Name      string                  `json:"name"`
		Questions []model.QuestionRequest `json:"questions"`
		Sets      []struct {
			Name      string                  `json:"name"`
			Questions []model.QuestionRequest `json:"questions"`
		} `json:"sets"`
	} `json:"subjects"`
}

func main() {
	var (
		file     string
		students int
		password string
	)
	flag.StringVar(&file, "file", "seeds/sample_paper.json", "Question seed file")
	flag.IntVar(&students, "students", 0, "Number of demo student accounts to create")
	flag.StringVar(&password, "password", "student123", "Password for demo students")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load exam policy")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	subjectRepo := repository.NewSubjectRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	questionService := service.NewQuestionService(questionRepo, subjectRepo, rdb, policy, log)

	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("Failed to read seed file")
		}
		var seed seedFile
		if err := json.Unmarshal(raw, &seed); err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("Failed to parse seed file")
		}

		fmt.Printf("=== Seeding questions from %s ===\n", file)
		created := 0
		for _, s := range seed.Subjects {
			subject := &model.Subject{Name: s.Name}
			if err := subjectRepo.Create(ctx, subject); err != nil {
				log.Fatal().Err(err).Str("subject", s.Name).Msg("Failed to create subject")
			}
			created += seedQuestions(ctx, questionService, subject.ID, nil, s.Questions)

			for _, set := range s.Sets {
				qs := &model.QuestionSet{SubjectID: subject.ID, Name: set.Name}
				if err := subjectRepo.CreateSet(ctx, qs); err != nil {
					log.Fatal().Err(err).Str("set", set.Name).Msg("Failed to create question set")
				}
				created += seedQuestions(ctx, questionService, subject.ID, &qs.ID, set.Questions)
			}
			fmt.Printf("Subject %q ready (%s)\n", subject.Name, subject.ID)
		}
		fmt.Printf("Created %d questions.\n", created)

		if err := questionService.PrewarmAllCaches(ctx); err != nil {
			log.Warn().Err(err).Msg("Cache prewarm failed")
		}
	}

	if students > 0 {
		fmt.Printf("=== Seeding %d students ===\n", students)
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}

		successCount := 0
		for i := 1; i <= students; i++ {
			user := &model.User{
				Name:         fmt.Sprintf("Student %03d", i),
				Email:        fmt.Sprintf("student%03d@smquiz.local", i),
				PasswordHash: string(hash),
				Role:         model.RoleStudent,
			}
			if _, err := userRepo.GetByEmail(ctx, user.Email); err == nil {
				continue
			}
			if err := userRepo.Create(ctx, user); err != nil {
				fmt.Printf("Error creating %s: %v\n", user.Email, err)
				continue
			}
			successCount++
			if successCount%10 == 0 {
				fmt.Printf("Created %d students...\n", successCount)
			}
		}
		fmt.Printf("Seed completed! Added %d/%d students.\n", successCount, students)
	}
}

func seedQuestions(ctx context.Context, qs *service.QuestionService, subjectID uuid.UUID, setID *uuid.UUID, reqs []model.QuestionRequest) int {
	n := 0
	for i := range reqs {
		req := reqs[i]
		req.SubjectID = subjectID
		req.SetID = setID
		if req.Position == 0 {
			req.Position = i + 1
		}
		if _, err := qs.Create(ctx, &req); err != nil {
			fmt.Printf("Skipping question %q: %v\n", req.Title, err)
			continue
		}
		n++
	}
	return n
}
