package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sethvargo/go-retry"

	"procurement/db"
	"procurement/db/migrations"
	"procurement/internal/config"
	"procurement/internal/handlers"
	"procurement/internal/lifecycle"
	"procurement/internal/provision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	dbConn, err := connect(ctx, cfg.PostgresConn)
	if err != nil {
		log.Fatalf("Cannot connect to DB: %v", err)
	}
	defer dbConn.Close()

	migrations.Run(cfg.PostgresConn)

	store, err := db.NewStorage(ctx, dbConn)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	core := lifecycle.NewOrchestrator(store, store, store, provision.New(cfg.WorkspaceRoot), cfg.InvitationTTL)
	h := handlers.NewHandler(store, core)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		// проекты
		r.Post("/projects/new", h.CreateProjectHandler)
		r.Get("/projects", h.GetProjectsHandler)
		r.Get("/projects/my", h.GetOrgProjectsHandler)
		r.Get("/projects/{projectId}", h.GetProjectHandler)
		r.Post("/projects/{projectId}/submit", h.SubmitForApprovalHandler)
		r.Post("/projects/{projectId}/approve", h.ApproveProjectHandler)
		r.Put("/projects/{projectId}/status", h.ChangeProjectStatusHandler)
		// приоритетные приглашения
		r.Post("/projects/{projectId}/invite", h.CreateInvitationHandler)
		r.Post("/projects/{projectId}/invitation/respond", h.RespondInvitationHandler)
		// предложения (bids)
		r.Post("/bids/new", h.CreateBidHandler)
		r.Get("/bids/my", h.GetUserBidsHandler)
		r.Get("/projects/{projectId}/bids", h.GetProjectBidsHandler)
		r.Put("/bids/{bidId}/approve", h.ApproveBidHandler)
		// договоры
		r.Post("/projects/{projectId}/contracts/new", h.AwardContractHandler)
		r.Put("/contracts/{contractId}/respond", h.RespondContractHandler)
		// уведомления
		r.Get("/notifications/my", h.GetUserNotificationsHandler)
	})

	log.Printf("Starting server on %s", cfg.ServerAddress)
	log.Fatal(http.ListenAndServe(cfg.ServerAddress, r))
}

// connect пробует подключение с backoff: база может подниматься дольше
// сервиса.
func connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	var conn *sqlx.DB
	backoff := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := sqlx.ConnectContext(ctx, "postgres", dsn)
		if err != nil {
			log.Printf("db not ready: %v", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	return conn, err
}
