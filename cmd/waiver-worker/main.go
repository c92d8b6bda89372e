package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jumpindia/funzone-pos/internal/adapters/crdb"
	"github.com/jumpindia/funzone-pos/internal/adapters/rabbit"
	"github.com/jumpindia/funzone-pos/internal/config"
	"github.com/jumpindia/funzone-pos/internal/domain"
	"github.com/jumpindia/funzone-pos/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

// scanInterval is how often the worker looks for waivers that crossed
// their one-year anniversary.
const scanInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PGDSN)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	worker := NewWaiverWorker(repo, rabbitPub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, scanInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown waiver worker")
}

// WaiverWorker publishes waiver.expired events as signed waivers cross
// their one-year anniversary, so the front desk can prompt a re-sign.
type WaiverWorker struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
	lastScan  time.Time
}

func NewWaiverWorker(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *WaiverWorker {
	return &WaiverWorker{repo: repo, rabbitPub: rabbitPub, logger: logger, lastScan: time.Now()}
}

func (w *WaiverWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// A waiver signed at t expires at t+1y: guests signed
			// inside the shifted window expired since the last scan.
			from := w.lastScan.AddDate(-1, 0, 0)
			to := now.AddDate(-1, 0, 0)
			w.lastScan = now

			guests, err := w.repo.GuestsWithWaiverSignedBetween(ctx, from, to)
			if err != nil {
				w.logger.Error("failed to scan expiring waivers", err)
				continue
			}
			for _, g := range guests {
				if domain.GetWaiverStatus(g, now) != domain.WaiverExpired {
					continue
				}
				if err := w.publishExpiredWithRetry(ctx, g); err != nil {
					w.logger.Error("failed to publish waiver expiry after retries", err)
				}
			}
		}
	}
}

func (w *WaiverWorker) publishExpiredWithRetry(ctx context.Context, g domain.Guest) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"guest_id":  g.ID,
		"name":      g.Name,
		"phone":     g.Phone,
		"signed_on": g.WaiverSignedOn.Format(time.RFC3339),
	})
	msg := amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        payload,
	}

	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		err := w.rabbitPub.Publish(ctx, "waiver.expired", msg)
		if err == nil {
			return nil
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed after %d retries", maxRetries)
}
