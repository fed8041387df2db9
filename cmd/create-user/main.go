package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/database"
	"github.com/smquiz/quiz-backend/internal/logger"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/repository"
	"github.com/smquiz/quiz-backend/internal/service"
	"golang.org/x/term"
)

func main() {
	var (
		roleFlag string
		reset    bool
	)
	flag.StringVar(&roleFlag, "role", string(model.RoleAdmin), "Role of the new user: admin, moderator or student")
	flag.BoolVar(&reset, "reset", false, "Reset the password of an existing user instead of creating one")
	flag.Parse()

	role := model.Role(strings.ToLower(roleFlag))
	if !role.Valid() {
		fmt.Printf("Error: unknown role %q\n", roleFlag)
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	authService := service.NewAuthService(cfg, nil, userRepo)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	if reset {
		fmt.Println("=== Reset User Password ===")
	} else {
		fmt.Printf("=== Create New User (%s) ===\n", role)
	}

	fmt.Print("Enter Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Println("Error: Email is required")
		return
	}

	existing, err := userRepo.GetByEmail(ctx, email)
	switch {
	case reset && errors.Is(err, repository.ErrNotFound):
		fmt.Printf("Error: no user with email %s\n", email)
		return
	case reset && err != nil:
		log.Fatal().Err(err).Msg("Failed to look up user")
	case !reset && err == nil:
		fmt.Printf("Error: a user with email %s already exists (use -reset)\n", email)
		return
	}

	var name string
	if !reset {
		fmt.Print("Enter Name: ")
		name, _ = reader.ReadString('\n')
		name = strings.TrimSpace(name)
		if name == "" {
			fmt.Println("Error: Name is required")
			return
		}
	}

	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println()
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hashedPassword, err := authService.HashPassword(password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	if reset {
		if err := userRepo.UpdatePassword(ctx, existing.ID, hashedPassword); err != nil {
			log.Fatal().Err(err).Msg("Failed to update password")
		}
		fmt.Printf("\nSuccess! Password of %s (%s) updated.\n", existing.Name, existing.Email)
		return
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
	}
	if err := userRepo.Create(ctx, user); err != nil {
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	fmt.Printf("\nSuccess! %s '%s' (%s) created with ID: %d\n", user.Role, user.Name, user.Email, user.ID)
}
