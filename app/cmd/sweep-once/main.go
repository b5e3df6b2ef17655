package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"buddy/app/core/missed"
	"buddy/app/core/notify"
	"buddy/app/core/store"
)

func main() {
	dataDir := flag.String("data", "output/db", "directory holding the sqlite database")
	dispatch := flag.Bool("dispatch", false, "also deliver due notifications after the sweep")
	timeoutSec := flag.Int("timeout", 120, "sweep timeout in seconds")
	flag.Parse()

	db, err := store.NewSQLiteDB(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: open database: %v\n", err)
		os.Exit(2)
	}
	defer db.Close()

	notifStore, err := notify.NewStore(db.Conn())
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: notification store: %v\n", err)
		os.Exit(2)
	}
	dispatcher := notify.NewLocalScheduler(notifStore, notify.LogDeliverer{})

	detector := missed.NewDetector(
		store.NewTaskStore(db),
		store.NewTodoStore(db),
		store.NewReminderStore(db),
		store.NewNotificationConfigStore(db),
		dispatcher,
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeoutSec)*time.Second)
	defer cancel()

	if err := detector.Sweep(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("sweep completed")

	if *dispatch {
		dispatcher.DispatchDue(ctx)
		// deliveries run in the background; give them a moment before exit
		time.Sleep(2 * time.Second)
		fmt.Println("dispatch completed")
	}
}
