package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// Worker consumes recorded-attendance messages and keeps per-activity tallies.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	if cfg.QueueBackend == "memory" {
		log.Fatalf("QUEUE_BACKEND=memory is process-local; the worker needs redis")
	}
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis not reachable at %s, consumer will keep retrying", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, "attendance:recorded")
	tally := attendance.NewTally(redisClient.Client, "")

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeAttendanceRecorded {
			continue
		}

		var rec attendance.Record
		if err := msg.Decode(&rec); err != nil {
			log.Printf("bad attendance message: %v", err)
			continue
		}

		if err := tally.Add(ctx, rec); err != nil {
			log.Printf("tally %s/%s failed: %v", rec.ActivityID, rec.ParticipantID, err)
			continue
		}

		sum, err := tally.Summary(ctx, rec.ActivityID)
		if err != nil {
			log.Printf("summary %s failed: %v", rec.ActivityID, err)
			continue
		}
		log.Printf("activity %s: %s %s (present=%d late=%d)",
			rec.ActivityID, rec.ParticipantID, rec.Status, sum.Present, sum.Late)

		time.Sleep(10 * time.Millisecond)
	}

	log.Println("worker stopped")
}
