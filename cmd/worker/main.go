package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"campuspass/internal/config"
	"campuspass/internal/movement"
	"campuspass/internal/queue"
	"campuspass/internal/store"
)

// Worker drains gate transitions off the queue and appends them to the
// crossing log. The current-state table is already written by the API; this
// keeps the full audit history without putting a second insert on the scan
// path.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("migrate failed: %v", err)
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	repo := movement.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for gate events...")
	for msg := range messages {
		if msg.Type != "movement" {
			continue
		}

		var evt movement.AuditEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("bad audit event payload: %v", err)
			continue
		}

		// Insert is keyed by event id, so a redelivered message is a no-op.
		if err := repo.AppendAudit(ctx, evt); err != nil {
			log.Printf("audit append failed for %s: %v", evt.EnrollmentID, err)
			// Push it back so the crossing is not lost.
			if perr := q.Publish(ctx, msg); perr != nil {
				log.Printf("requeue failed, event dropped: %v", perr)
			}
			continue
		}
		log.Printf("recorded %s %s by %s", evt.EnrollmentID, evt.Transition, evt.RecordedBy)
	}

	log.Println("worker stopped")
}
