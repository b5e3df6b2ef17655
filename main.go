package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "buddy/app/configs"
	"buddy/app/core/agenda"
	"buddy/app/core/assistant"
	"buddy/app/core/cli"
	"buddy/app/core/completion"
	"buddy/app/core/items"
	"buddy/app/core/missed"
	"buddy/app/core/notify"
	"buddy/app/core/scheduler"
	"buddy/app/core/store"
	"buddy/app/pkg/logger"
)

func main() {
	if err := logger.Init("output/logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("Buddy starting...")

	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	db, err := store.NewSQLiteDB("output/db")
	if err != nil {
		logger.Error("Failed to initialize DB: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Database initialized")

	peopleStore := store.NewPeopleStore(db)
	taskStore := store.NewTaskStore(db)
	todoStore := store.NewTodoStore(db)
	reminderStore := store.NewReminderStore(db)
	chatStore := store.NewChatStore(db)
	notifConfigStore := store.NewNotificationConfigStore(db)

	notifStore, err := notify.NewStore(db.Conn())
	if err != nil {
		logger.Error("Failed to initialize notification store: %v", err)
		os.Exit(1)
	}
	dispatcher := notify.NewLocalScheduler(notifStore, notify.LogDeliverer{})
	dispatcher.SetBatchSize(cfg.Sweep.DeliverLimit)

	itemService := items.NewService(taskStore, todoStore, reminderStore, peopleStore, dispatcher)
	detector := missed.NewDetector(taskStore, todoStore, reminderStore, notifConfigStore, dispatcher)

	model := completion.NewLocalService(cfg.Model)
	go func() {
		if err := model.Initialize(context.Background()); err != nil {
			logger.Error("Model initialization failed: %v", err)
		}
	}()

	prompts := assistant.NewPromptBuilder(cfgManager, peopleStore, taskStore, todoStore, reminderStore, chatStore)
	executor := assistant.NewExecutor(itemService, detector, notifConfigStore)
	chat := assistant.NewService(chatStore, prompts, model, executor)
	planner := agenda.NewPlanner(peopleStore, notifConfigStore, chat, dispatcher)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	jobs := scheduler.New()
	runTimeout := time.Duration(cfg.Sweep.RunTimeout) * time.Second
	if err := jobs.Register(scheduler.Job{
		Name:       "missed-sweep",
		Interval:   time.Duration(cfg.Sweep.IntervalSec) * time.Second,
		Timeout:    runTimeout,
		RunOnStart: true,
		Run:        detector.Sweep,
	}); err != nil {
		logger.Error("Failed to register sweep job: %v", err)
		os.Exit(1)
	}
	if err := jobs.Register(scheduler.Job{
		Name:       "agenda-plan",
		Interval:   time.Duration(cfg.Sweep.IntervalSec) * time.Second,
		Timeout:    runTimeout,
		RunOnStart: true,
		Run:        planner.Plan,
	}); err != nil {
		logger.Error("Failed to register agenda job: %v", err)
		os.Exit(1)
	}
	if err := jobs.Register(scheduler.Job{
		Name:     "notification-dispatch",
		Interval: time.Duration(cfg.Sweep.DispatchSec) * time.Second,
		Timeout:  runTimeout,
		Run: func(ctx context.Context) error {
			dispatcher.DispatchDue(ctx)
			return nil
		},
	}); err != nil {
		logger.Error("Failed to register dispatch job: %v", err)
		os.Exit(1)
	}
	if err := jobs.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := jobs.Stop(3 * time.Second); err != nil {
			logger.Error("Scheduler shutdown: %v", err)
		}
	}()

	loop := cli.New(cfg.Assistant.Name, chat, jobs)
	if err := loop.Run(ctx); err != nil {
		logger.Error("Chat loop: %v", err)
	}

	model.Release()
	logger.Info("Buddy shutting down.")
}
