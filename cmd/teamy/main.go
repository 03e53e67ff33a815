package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	api "github.com/scioly/teamy/internal/api/http"
	"github.com/scioly/teamy/internal/audit"
	auth "github.com/scioly/teamy/internal/auth/middleware"
	"github.com/scioly/teamy/internal/config"
	"github.com/scioly/teamy/internal/db"
	"github.com/scioly/teamy/internal/exam"
	"github.com/scioly/teamy/internal/metrics"
	"github.com/scioly/teamy/internal/rbac"
	"github.com/scioly/teamy/internal/tournament"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	examStore := exam.NewSQLStore(dbh, cfg.DBDriver)
	tourStore := tournament.NewSQLStore(dbh)
	authz := tournament.NewAuthorizer(tourStore)
	auditLog := audit.NewLog(dbh)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

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
	if cfg.EnableMetrics {
		r.Use(metrics.Middleware)
		r.Handle("/metrics", promhttp.Handler())
	}

	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, true))

		pr.Route("/api/tournaments", func(tr chi.Router) {
			tr.With(rbac.Require("tournament:create")).
				Post("/", api.CreateTournamentHandler(tourStore))
			tr.Get("/{tournamentID}", api.GetTournamentHandler(tourStore))
			tr.Get("/{tournamentID}/events", api.ListEventsHandler(tourStore))
			tr.Post("/{tournamentID}/events", api.AddEventHandler(tourStore, authz))
			tr.Post("/{tournamentID}/admins", api.AddAdminHandler(tourStore, authz))

			tr.With(rbac.Require("staff:invite")).
				Post("/{tournamentID}/staff", api.InviteStaffHandler(tourStore, authz))
			tr.Get("/{tournamentID}/staff", api.ListStaffHandler(tourStore, authz))
			tr.With(rbac.Require("staff:respond")).
				Post("/{tournamentID}/staff/{staffID}/respond", api.RespondStaffHandler(tourStore))

			tr.With(rbac.Require("hosting:create")).
				Post("/{tournamentID}/hosting-requests", api.CreateHostingRequestHandler(tourStore))
			tr.Patch("/{tournamentID}/hosting-requests/{requestID}", api.ResolveHostingRequestHandler(tourStore))
		})

		pr.Route("/api/users", func(ur chi.Router) {
			ur.With(rbac.Require("users:manage")).
				Post("/bulk", api.BulkUpsertUsersHandler(dbh))
			ur.With(rbac.Require("users:manage")).
				Get("/", api.ListUsersHandler(dbh))
			ur.Post("/change-password", api.ChangePasswordHandler(dbh))
		})

		pr.Route("/api/es/tests", func(tr chi.Router) {
			tr.With(rbac.Require("test:create")).
				Post("/", api.PutTestHandler(examStore, authz))
			tr.With(rbac.Require("test:create")).
				Put("/{testID}", api.PutTestHandler(examStore, authz))
			tr.With(rbac.Require("test:view")).
				Get("/", api.ListTestsHandler(examStore))
			tr.With(rbac.Require("test:view")).
				Get("/{testID}", api.GetTestHandler(examStore, authz))

			// Student attempt flow
			tr.With(rbac.Require("attempt:create")).
				Post("/{testID}/attempts", api.CreateAttemptHandler(examStore))
			tr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
				Get("/{testID}/attempts", api.ListAttemptsHandler(examStore))
			tr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
				Get("/{testID}/attempts/{attemptID}", api.GetAttemptHandler(examStore))
			tr.With(rbac.Require("attempt:save")).
				Post("/{testID}/attempts/{attemptID}/responses", api.SaveResponsesHandler(examStore))
			tr.With(rbac.Require("attempt:submit")).
				Post("/{testID}/attempts/{attemptID}/submit", api.SubmitAttemptHandler(examStore, auditLog))

			// Grading. No coarse role gate here: authorization is resource-scoped
			// (admin, creator, approved director, or accepted staff of the test's
			// event) and the Authorizer inside the handlers decides. Email-invited
			// staff may hold a plain student account.
			tr.Get("/{testID}/attempts/{attemptID}/grading", api.GetAttemptGradingHandler(examStore, authz))
			tr.Patch("/{testID}/attempts/{attemptID}/grade", api.GradeAttemptHandler(examStore, authz, auditLog))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
