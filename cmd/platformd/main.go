package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	api "github.com/RozzleCort/edu-platform/internal/api/http"
	auth "github.com/RozzleCort/edu-platform/internal/auth/middleware"
	"github.com/RozzleCort/edu-platform/internal/config"
	"github.com/RozzleCort/edu-platform/internal/db"
	"github.com/RozzleCort/edu-platform/internal/grading"
	"github.com/RozzleCort/edu-platform/internal/quiz"
	"github.com/RozzleCort/edu-platform/internal/rbac"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := quiz.NewSQLStore(dbh, grading.NewDefaultGrader())

	if err := seedTeacher(ctx, dbh, cfg); err != nil {
		log.Fatalf("seed teacher: %v", err)
	}

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))
	r.Post("/auth/register", auth.RegisterHandler(authSvc, dbh, uuid.NewString))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Teacher-only: author quizzes, read stats, grade
		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", api.CreateQuizHandler(store))
		pr.With(rbac.Require("quiz:stats")).
			Get("/quizzes/{quizID}/statistics", api.QuizStatisticsHandler(store))
		pr.With(rbac.Require("attempt:view-all")).
			Get("/questions/{questionID}/answers", api.ListQuestionAnswersHandler(store))
		pr.With(rbac.Require("attempt:view-all")).
			Get("/attempts/{attemptID}/short-answers", api.ListShortAnswersHandler(store))
		pr.With(rbac.Require("answer:grade")).
			Post("/answers/{answerID}/grade", api.GradeAnswerHandler(store))

		// Student/Teacher: browse quizzes
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes", api.ListQuizzesHandler(store))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", api.GetQuizHandler(store))

		// Student flow
		pr.With(rbac.Require("attempt:create")).
			Post("/quizzes/{quizID}/attempts", api.StartAttemptHandler(store))
		pr.With(rbac.Require("attempt:save")).
			Put("/attempts/{attemptID}/answers/{questionID}", api.SubmitAnswerHandler(store))
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(store))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

// seedTeacher inserts a bootstrap teacher account when the users table is
// empty, so a fresh deployment has someone able to author quizzes.
func seedTeacher(ctx context.Context, dbh *sql.DB, cfg config.Config) error {
	if cfg.SeedTeacher == "" || cfg.SeedTeacherHash == "" {
		return nil
	}
	var n int
	if err := dbh.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := dbh.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)`,
		uuid.NewString(), cfg.SeedTeacher, cfg.SeedTeacherHash, "teacher", time.Now().Unix())
	if err == nil {
		log.Printf("seeded teacher account %q", cfg.SeedTeacher)
	}
	return err
}
