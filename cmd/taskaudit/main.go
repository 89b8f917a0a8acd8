package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-audit/internal/api"
	"task-audit/internal/bot"
	"task-audit/internal/config"
	"task-audit/internal/repository"
	"task-audit/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	store := repository.NewStore(db)

	seed := time.Now().UnixNano()
	if cfg.HasAuditorSeed {
		seed = cfg.AuditorSeed
	}
	tickets, err := service.NewTicketGenerator(time.Now)
	if err != nil {
		log.Fatalf("tickets: %v", err)
	}

	userSvc := service.NewUserService(store.Users, service.NewPasswordHasher(0))
	taskSvc := service.NewTaskService(store, tickets)
	workflowSvc := service.NewWorkflowService(store, service.NewAuditorPicker(rand.NewSource(seed)), time.Now)
	reminderSvc := service.NewReminderService(store.Tasks)

	if cfg.Admin.Enabled() {
		admin, err := userSvc.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
		log.Printf("[info] admin account %s ready", admin.Username)
	}

	tokens := api.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL, time.Now)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(api.NewHandler(taskSvc, workflowSvc, userSvc, tokens)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[info] http api listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server: %v", err)
			stop()
		}
	}()

	if cfg.BotEnabled() {
		telegramBot, err := bot.New(cfg.TelegramToken, bot.Services{
			Users:     userSvc,
			Tasks:     taskSvc,
			Workflow:  workflowSvc,
			Reminders: reminderSvc,
		})
		if err != nil {
			log.Fatalf("bot: %v", err)
		}

		scheduler := service.NewSchedulerService(service.DigestSchedule{
			At:       cfg.DigestTime,
			Interval: cfg.ReportInterval,
			Location: cfg.Location,
		})
		spec, err := scheduler.ScheduleDigests(telegramBot.SendDigests)
		if err != nil {
			log.Fatalf("schedule digests: %v", err)
		}
		if next, ok := scheduler.NextRunAfter(time.Now()); ok {
			log.Printf("[info] digests scheduled %q, next at %s", spec, next.Format(time.RFC3339))
		}
		scheduler.Start()
		defer scheduler.Stop()

		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("bot stopped with error: %v", err)
			}
		}()
	} else {
		log.Println("[info] TELEGRAM_TOKEN is empty, bot disabled")
	}

	log.Println("Task audit service started.")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	log.Println("Shutdown complete.")
}
