// Package app assembles repositories and services from configuration.  It
// is shared by the API server and the background worker.
package app

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gigexecs/gigexecs-api/internal/ai"
	"github.com/gigexecs/gigexecs-api/internal/auth"
	"github.com/gigexecs/gigexecs-api/internal/config"
	"github.com/gigexecs/gigexecs-api/internal/email"
	"github.com/gigexecs/gigexecs-api/internal/repository"
	"github.com/gigexecs/gigexecs-api/internal/service"
	"github.com/gigexecs/gigexecs-api/internal/storage"
)

// App holds the wired components.
type App struct {
	Users    *repository.UserRepo
	Staff    *repository.StaffRepo
	Sessions *repository.ImpersonationRepo
	Profiles *repository.ProfileRepo
	Store    *storage.Store
	Verifier *auth.Verifier

	Registration *service.RegistrationService
	StaffConsole *service.StaffService
	Vetting      *service.VettingService
	Review       *service.ReviewService
	Gigs         *service.ExternalGigService
	Emails       *service.EmailService
	Reminders    *service.ReminderEngine
	Parse        *service.ParseService
	Drafts       *service.DraftService
	Files        *service.FileService
	Feedback     *service.FeedbackService
}

// Build wires every service.  rdb may be nil; the reminder lock is then
// skipped.
func Build(cfg config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	users := repository.NewUserRepo(db)
	staff := repository.NewStaffRepo(db)
	sessions := repository.NewImpersonationRepo(db)
	profiles := repository.NewProfileRepo(db)
	files := repository.NewSourceFileRepo(db)
	drafts := repository.NewDraftRepo(db)
	decisions := repository.NewVettingRepo(db)
	projects := repository.NewProjectRepo(db)
	deliveries := repository.NewEmailLogRepo(db)

	catalog, err := email.LoadCatalog(cfg.SiteURL)
	if err != nil {
		return nil, fmt.Errorf("email catalog: %w", err)
	}
	var provider email.Provider
	if cfg.ResendAPIKey != "" {
		provider = email.NewResend(cfg.ResendAPIKey, cfg.EmailFrom, cfg.EmailReplyTo, "")
	}
	mailer := email.NewDispatcher(catalog, deliveries, provider, log.Default())

	store, err := storage.New(cfg.StorageDir, []byte(cfg.StorageSigningKey))
	if err != nil {
		return nil, err
	}
	llm := ai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, profiles, log.Default())

	var jobs service.JobPublisher
	if cfg.AMQPURL != "" {
		jobs = &service.AMQPPublisher{URL: cfg.AMQPURL, Logger: log.Default()}
	}
	var lock service.Locker
	if rdb != nil {
		lock = service.RedisLocker{Client: rdb}
	}

	mapper := service.NewProfileMapper(profiles, users, log.Default())
	a := &App{
		Users:    users,
		Staff:    staff,
		Sessions: sessions,
		Profiles: profiles,
		Store:    store,
		Verifier: &auth.Verifier{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Sessions: sessions},

		Registration: service.NewRegistrationService(users, log.Default()),
		StaffConsole: service.NewStaffService(staff, sessions, users, cfg.JWTSecret, cfg.JWTIssuer,
			time.Duration(cfg.StaffTTLMin)*time.Minute, cfg.BcryptCost, log.Default()),
		Vetting:   service.NewVettingService(users, decisions, staff, mailer, log.Default()),
		Review:    service.NewReviewService(users, profiles, decisions),
		Gigs:      service.NewExternalGigService(projects, staff, users, log.Default()),
		Emails:    service.NewEmailService(mailer, users, deliveries, staff, log.Default()),
		Reminders: service.NewReminderEngine(users, mailer, lock, log.Default()),
		Parse:     service.NewParseService(files, store, llm, jobs, cfg.ParseStaleAfter, log.Default()),
		Drafts:    service.NewDraftService(drafts, files, users, profiles, llm, mapper, log.Default()),
		Files:     service.NewFileService(store),
		Feedback:  service.NewFeedbackService(provider, users, log.Default()),
	}
	return a, nil
}
