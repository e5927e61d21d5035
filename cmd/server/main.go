package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/gigexecs/gigexecs-api/internal/app"
	"github.com/gigexecs/gigexecs-api/internal/config"
	"github.com/gigexecs/gigexecs-api/internal/database"
	"github.com/gigexecs/gigexecs-api/internal/handler"
	"github.com/gigexecs/gigexecs-api/internal/middleware"
	"github.com/gigexecs/gigexecs-api/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis: unavailable, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}
	if cfg.AMQPURL == "" {
		log.Printf("rabbitmq: not configured, parse jobs run via the background endpoint")
	}

	a, err := app.Build(cfg, db, rdb)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLog(log.Default()))
	e.Use(middleware.CORS(middleware.AllowedOrigins))
	e.Use(echomw.BodyLimit("15M"))

	router.Register(e, router.Deps{
		Verifier:       a.Verifier,
		Staff:          a.Staff,
		Limiter:        middleware.NewLimiter(config.LoadRateLimitConfig(), rdb),
		Cache:          middleware.ResponseCache(config.LoadCacheConfig(), rdb),
		ServiceRoleKey: cfg.ServiceRoleKey,
		DB:             db,

		Accounts: handler.NewAccountHandler(a.Registration, a.Profiles),
		Console:  handler.NewStaffHandler(a.StaffConsole, a.Vetting, a.Review),
		Gigs:     handler.NewGigHandler(a.Gigs),
		Emails:   handler.NewEmailHandler(a.Emails, a.Reminders, a.Staff),
		Profile:  handler.NewProfileHandler(a.Parse, a.Drafts, log.Default()),
		Files:    handler.NewFileHandler(a.Files),
		Feedback: handler.NewFeedbackHandler(a.Feedback),
	})

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
